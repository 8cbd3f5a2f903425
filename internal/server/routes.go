package server

import (
	"net/http"

	"github.com/atlasbahamas/atlas/internal/handler"
	"github.com/atlasbahamas/atlas/internal/model"
	"github.com/atlasbahamas/atlas/internal/permission"
	"github.com/atlasbahamas/atlas/internal/router"
)

type handlers struct {
	auth          *handler.AuthHandler
	public        *handler.PublicHandler
	notifications *handler.NotificationHandler
	admin         *handler.AdminHandler
	manager       *handler.ManagerHandler
	tenant        *handler.TenantHandler
	messages      *handler.MessageHandler
}

const (
	mGet  = http.MethodGet
	mPost = http.MethodPost
)

// areaNotFound answers unknown paths inside a role area once the area's
// gates have passed.
func areaNotFound(c *router.Context) error { return c.NotFound() }

// routes is the dispatch table. Order matters: the first matching entry wins,
// so literal paths precede the prefixes and patterns that would shadow them.
func routes(h handlers) []*router.Route {
	var (
		tenant  = model.RoleTenant
		manager = model.RolePropertyManager
		admin   = model.RoleAdmin
	)
	return []*router.Route{
		// Public
		router.Exact(mGet, "/", h.public.Home),
		router.Exact(mGet, "/about", h.public.About),
		router.Exact(mGet, "/contact", h.public.Contact),
		router.Exact(mGet, "/listings", h.public.Listings),
		router.Regex(mGet, `/listing/(?P<id>\d+)`, h.public.Listing),
		router.Exact(mGet, "/api/listings", h.public.APIListings),
		router.Exact(mGet, "/api/units", h.public.APIUnits),
		router.Regex(mGet, `/uploads/(?P<name>[A-Za-z0-9._-]+)`, h.public.Upload),
		router.Prefix(mGet, "/static/", h.public.Static),
		router.Exact(mGet, "/health", handler.Health),
		router.Exact(mPost, "/inquiry", h.public.Inquiry),
		router.Exact(mPost, "/apply", h.public.Apply),
		router.Exact(mPost, "/favorite", h.public.Favorite).Auth(),
		router.Exact(mGet, "/favorites", h.public.Favorites).Auth(),

		// Accounts
		router.Exact(mGet, "/login", h.auth.LoginPage),
		router.Exact(mPost, "/login", h.auth.Login),
		router.Exact(mPost, "/logout", h.auth.Logout),
		router.Exact(mGet, "/register", h.auth.RegisterPage),
		router.Exact(mPost, "/register", h.auth.Register),
		router.Exact(mGet, "/forgot", h.auth.ForgotPage),
		router.Exact(mPost, "/forgot", h.auth.Forgot),
		router.Exact(mGet, "/reset", h.auth.ResetPage),
		router.Exact(mPost, "/reset", h.auth.Reset),
		router.Exact(mGet, "/profile", h.auth.Profile).Auth(),
		router.Exact(mPost, "/profile/update", h.auth.ProfileUpdate).Auth(),

		// Notifications
		router.Exact(mGet, "/notifications", h.notifications.List).Auth(),
		router.Exact(mPost, "/notifications/readall", h.notifications.ReadAll).Auth(),
		router.Exact(mGet, "/notifications/preferences", h.notifications.Preferences).Auth(),
		router.Exact(mPost, "/notifications/preferences", h.notifications.SavePreferences).Auth(),
		router.Exact(mPost, "/notifications/push/subscribe", h.notifications.Subscribe).Auth(),
		router.Exact(mPost, "/notifications/push/unsubscribe", h.notifications.Unsubscribe).Auth(),
		router.Exact(mGet, "/ws", h.notifications.Live).Auth(),

		// Messages
		router.Exact(mGet, "/messages", h.messages.Inbox).Auth(),
		router.Exact(mPost, "/messages/new", h.messages.New).Auth(),
		router.Exact(mPost, "/messages/send", h.messages.Send).Auth(),

		// Admin
		router.Exact(mGet, "/admin", h.admin.Dashboard).Roles(admin).Action("admin.portal"),
		router.Exact(mGet, "/admin/permissions", h.admin.Permissions).Roles(admin).Action(permission.ManageAction),
		router.Exact(mPost, "/admin/permissions/update", h.admin.UpdatePermissions).Roles(admin).Action(permission.ManageAction),
		router.Exact(mPost, "/admin/permissions/reset", h.admin.ResetPermissions).Roles(admin).Action(permission.ManageAction),
		router.Exact(mGet, "/admin/users", h.admin.Users).Roles(admin).Action(permission.ManageAction),
		router.Exact(mPost, "/admin/users/role", h.admin.UpdateRole).Roles(admin).Action(permission.ManageAction),
		router.Exact(mPost, "/admin/users/unlock", h.admin.Unlock).Roles(admin).Action(permission.ManageAction),
		router.Exact(mGet, "/admin/audit", h.admin.Audit).Roles(admin).Action("admin.audit.read"),
		router.Exact(mGet, "/admin/audit/export", h.admin.AuditExport).Roles(admin).Action("admin.audit.read"),
		router.Exact(mGet, "/admin/submissions", h.admin.Submissions).Roles(admin).Action("admin.submissions.review"),
		router.Exact(mPost, "/admin/submissions/approve", h.admin.Approve).Roles(admin).Action("admin.submissions.review"),
		router.Exact(mPost, "/admin/submissions/reject", h.admin.Reject).Roles(admin).Action("admin.submissions.review"),

		// Property manager. /landlord keeps the older entry points alive.
		router.Exact(mGet, "/property-manager", h.manager.Dashboard).Roles(manager).Action("manager.portal"),
		router.Exact(mGet, "/manager", h.manager.Dashboard).Roles(manager).Action("manager.portal"),
		router.Exact(mGet, "/landlord", h.manager.Dashboard).Roles(manager).Action("landlord.portal"),
		router.Exact(mPost, "/manager/property/new", h.manager.NewProperty).Roles(manager).Action("manager.property.manage"),
		router.Exact(mPost, "/landlord/property/new", h.manager.NewProperty).Roles(manager).Action("landlord.property.manage"),
		router.Exact(mPost, "/manager/tenant/invite", h.manager.Invite).Roles(manager).Action("manager.tenant_sync.manage"),
		router.Exact(mPost, "/landlord/tenant/invite", h.manager.Invite).Roles(manager).Action("landlord.tenant_sync.manage"),
		router.Exact(mPost, "/manager/listing-requests", h.manager.ListingRequest).Roles(manager).Action("manager.listing.submit"),
		router.Exact(mPost, "/landlord/listing-requests", h.manager.ListingRequest).Roles(manager).Action("landlord.listing.submit"),
		router.Exact(mPost, "/manager/maintenance/update", h.manager.UpdateMaintenance).Roles(manager).Action("manager.ops.update"),
		router.Exact(mPost, "/manager/payments/update", h.manager.UpdatePayment).Roles(manager).Action("manager.ops.update"),
		router.Exact(mGet, "/manager/export/properties", h.manager.ExportProperties).Roles(manager).Action("manager.portal"),
		router.Exact(mGet, "/manager/payments/export", h.manager.ExportPayments).Roles(manager).Action("manager.portal"),
		router.Exact(mGet, "/manager/inquiries", h.manager.Inquiries).Roles(manager).Action("manager.portal"),
		router.Exact(mPost, "/manager/inquiries/update", h.manager.UpdateInquiry).Roles(manager).Action("manager.ops.update"),
		router.Exact(mGet, "/manager/applications", h.manager.Applications).Roles(manager).Action("manager.portal"),
		router.Exact(mPost, "/manager/applications/update", h.manager.UpdateApplication).Roles(manager).Action("manager.ops.update"),
		router.Exact(mGet, "/manager/leases", h.manager.Leases).Roles(manager).Action("manager.leases.manage"),
		router.Exact(mPost, "/manager/leases/end", h.manager.EndLease).Roles(manager).Action("manager.leases.manage"),

		// Tenant
		router.Exact(mGet, "/tenant", h.tenant.Dashboard).Roles(tenant).Action("tenant.portal"),
		router.Exact(mGet, "/tenant/lease", h.tenant.Lease).Roles(tenant).Action("tenant.portal"),
		router.Exact(mPost, "/tenant/lease/sign", h.tenant.SignLease).Roles(tenant).Action("tenant.portal"),
		router.Exact(mGet, "/tenant/invites", h.tenant.Invites).Roles(tenant).Action("tenant.portal"),
		router.Exact(mPost, "/tenant/invite/respond", h.tenant.RespondInvite).Roles(tenant).Action("tenant.invite.respond"),
		router.Exact(mGet, "/tenant/payments", h.tenant.Payments).Roles(tenant).Action("tenant.portal"),
		router.Exact(mGet, "/tenant/ledger", h.tenant.Ledger).Roles(tenant).Action("tenant.portal"),
		router.Exact(mPost, "/tenant/pay-rent", h.tenant.PayRent).Roles(tenant).Action("tenant.payment.submit"),
		router.Exact(mPost, "/tenant/pay-bills", h.tenant.PayBill).Roles(tenant).Action("tenant.payment.submit"),
		router.Exact(mGet, "/tenant/maintenance", h.tenant.Maintenance).Roles(tenant).Action("tenant.portal"),
		router.Exact(mPost, "/tenant/maintenance/new", h.tenant.NewMaintenance).Roles(tenant).Action("tenant.maintenance.submit"),

		// Area catch-alls, after every literal route they would shadow.
		router.Prefix(mGet, "/tenant", areaNotFound).Roles(tenant).Action("tenant.portal"),
		router.Prefix(mPost, "/tenant", areaNotFound).Roles(tenant).Action("tenant.portal"),
		router.Prefix(mGet, "/landlord", areaNotFound).Roles(manager).Action("landlord.portal"),
		router.Prefix(mPost, "/landlord", areaNotFound).Roles(manager).Action("landlord.portal"),
		router.Prefix(mGet, "/manager", areaNotFound).Roles(manager).Action("manager.portal"),
		router.Prefix(mPost, "/manager", areaNotFound).Roles(manager).Action("manager.portal"),
		router.Prefix(mGet, "/property-manager", areaNotFound).Roles(manager).Action("manager.portal"),
		router.Prefix(mPost, "/property-manager", areaNotFound).Roles(manager).Action("manager.portal"),
	}
}

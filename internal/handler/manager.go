package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/atlasbahamas/atlas/internal/audit"
	"github.com/atlasbahamas/atlas/internal/model"
	"github.com/atlasbahamas/atlas/internal/notify"
	"github.com/atlasbahamas/atlas/internal/router"
	"github.com/atlasbahamas/atlas/internal/store"
)

const (
	managerHome  = "/property-manager"
	maxUnits     = 200
	recentWindow = 20
)

var propertyTypes = []string{"House", "Apartment"}

type ManagerHandler struct {
	properties  *store.PropertyStore
	leases      *store.LeaseStore
	invites     *store.InviteStore
	listings    *store.ListingStore
	maintenance *store.MaintenanceStore
	payments    *store.PaymentStore
	users       *store.UserStore
	notifier    *notify.Notifier
	audit       *audit.Logger
	inviteTTL   time.Duration
	logger      *slog.Logger
}

func NewManagerHandler(
	ps *store.PropertyStore,
	leases *store.LeaseStore,
	is *store.InviteStore,
	ls *store.ListingStore,
	ms *store.MaintenanceStore,
	pay *store.PaymentStore,
	us *store.UserStore,
	n *notify.Notifier,
	al *audit.Logger,
	inviteTTL time.Duration,
	logger *slog.Logger,
) *ManagerHandler {
	return &ManagerHandler{
		properties:  ps,
		leases:      leases,
		invites:     is,
		listings:    ls,
		maintenance: ms,
		payments:    pay,
		users:       us,
		notifier:    n,
		audit:       al,
		inviteTTL:   inviteTTL,
		logger:      logger,
	}
}

func (h *ManagerHandler) Dashboard(c *router.Context) error {
	acct := c.Account()
	props, err := h.properties.ListByOwner(acct)
	if err != nil {
		return err
	}
	units, err := h.properties.UnitsByOwner(acct)
	if err != nil {
		return err
	}
	leases, err := h.leases.ListByOwner(acct)
	if err != nil {
		return err
	}
	maint, err := h.maintenance.ListForOwner(acct)
	if err != nil {
		return err
	}
	payments, err := h.payments.ListForOwner(acct)
	if err != nil {
		return err
	}
	if len(payments) > recentWindow {
		payments = payments[:recentWindow]
	}
	invites, err := h.invites.ListBySender(c.User.ID)
	if err != nil {
		return err
	}
	requests, err := h.listings.ListRequests("")
	if err != nil {
		return err
	}
	var mine []model.ListingRequest
	for _, r := range requests {
		if r.SubmittedBy != nil && *r.SubmittedBy == c.User.ID {
			mine = append(mine, r)
		}
	}

	occupied := 0
	for _, u := range units {
		if u.IsOccupied {
			occupied++
		}
	}
	openMaint := 0
	for _, m := range maint {
		if m.Status != "closed" {
			openMaint++
		}
	}
	return c.HTML("manager", "Property manager", map[string]any{
		"Properties":        props,
		"Units":             units,
		"Occupied":          occupied,
		"Leases":            leases,
		"Maintenance":       maint,
		"OpenMaint":         openMaint,
		"Payments":          payments,
		"Invites":           invites,
		"Requests":          mine,
		"PropertyTypes":     propertyTypes,
		"Categories":        model.ListingCategories,
		"MaintenanceStatus": model.MaintenanceStatuses,
		"PaymentStatuses":   model.PaymentStatuses,
		"InviteExpiryHours": int(h.inviteTTL.Hours()),
	})
}

// unitLabels takes an explicit comma-separated list or numbers count units.
func unitLabels(list string, count int64) []string {
	var out []string
	seen := map[string]bool{}
	for _, l := range strings.Split(list, ",") {
		l = strings.TrimSpace(l)
		if l == "" || seen[strings.ToLower(l)] {
			continue
		}
		seen[strings.ToLower(l)] = true
		out = append(out, l)
	}
	if len(out) > 0 {
		return out
	}
	if count <= 0 {
		count = 1
	}
	for i := int64(1); i <= count; i++ {
		out = append(out, fmt.Sprintf("Unit %d", i))
	}
	return out
}

func (h *ManagerHandler) NewProperty(c *router.Context) error {
	name := c.Form("name")
	ptype := c.Form("property_type")
	location := c.Form("location")
	count := c.FormInt("units")

	switch {
	case !minLen(name, 2):
		return c.Flash(managerHome, "Property name must be at least 2 characters.", true)
	case !oneOf(ptype, propertyTypes):
		return c.Flash(managerHome, "Choose House or Apartment.", true)
	case !minLen(location, 2):
		return c.Flash(managerHome, "Location is required.", true)
	case count > maxUnits:
		return c.Flash(managerHome, fmt.Sprintf("At most %d units per property.", maxUnits), true)
	}
	labels := unitLabels(c.Form("unit_labels"), count)
	if ptype == "House" && c.Form("unit_labels") == "" && count <= 1 {
		labels = []string{"Main"}
	}
	if len(labels) > maxUnits {
		return c.Flash(managerHome, fmt.Sprintf("At most %d units per property.", maxUnits), true)
	}
	rent := c.FormInt("rent")
	if rent < 0 {
		return c.Flash(managerHome, "Rent cannot be negative.", true)
	}

	p, err := h.properties.Create(store.NewProperty{
		OwnerAccount: c.Account(),
		Code:         c.Form("code"),
		Name:         name,
		PropertyType: ptype,
		Location:     location,
		UnitLabels:   labels,
		Beds:         int(c.FormInt("beds")),
		Baths:        int(c.FormInt("baths")),
		Rent:         rent,
	})
	if err != nil {
		return err
	}
	h.audit.Log(c.R.Context(), c.User, "property_created", "property", p.ID, fmt.Sprintf("%s, %d unit(s)", p.Name, len(labels)))
	return c.Flash(managerHome, fmt.Sprintf("Property %s registered with %d unit(s).", p.ID, len(labels)), false)
}

// owns reports whether the signed-in manager may act on propertyID. Admins
// act on any property.
func (h *ManagerHandler) owns(c *router.Context, propertyID string) (bool, error) {
	if propertyID == "" {
		return false, nil
	}
	if c.User.IsAdmin() {
		p, err := h.properties.Get(propertyID)
		return p != nil, err
	}
	return h.properties.OwnedBy(propertyID, c.Account())
}

// Invite offers a unit to a tenant found by account number, username or
// email.
func (h *ManagerHandler) Invite(c *router.Context) error {
	pid := c.Form("property_id")
	label := c.Form("unit_label")
	owned, err := h.owns(c, pid)
	if err != nil {
		return err
	}
	if !owned {
		return c.Flash(managerHome, "Property not found.", true)
	}
	unit, err := h.properties.GetUnit(pid, label)
	if err != nil {
		return err
	}
	if unit == nil {
		return c.Flash(managerHome, "Unit not found.", true)
	}

	tenant, err := h.users.Lookup(c.Form("tenant"))
	if err != nil {
		return err
	}
	if tenant == nil || tenant.Role != model.RoleTenant {
		return c.Flash(managerHome, "No tenant account matches that account number, username or email.", true)
	}

	inv, err := h.invites.Create(c.User.ID, tenant, pid, label, c.Form("message"), h.inviteTTL)
	switch {
	case errors.Is(err, store.ErrUnitOccupied):
		return c.Flash(managerHome, "That unit is already occupied.", true)
	case errors.Is(err, store.ErrInviteDuplicate):
		return c.Flash(managerHome, "A pending invite already exists for this tenant and unit.", true)
	case errors.Is(err, store.ErrInviteUnavailable):
		return c.Flash(managerHome, "That unit is not available.", true)
	case err != nil:
		return err
	}

	ctx := c.R.Context()
	text := fmt.Sprintf("You have been invited to %s %s.", pid, label)
	if _, err := h.notifier.Notify(ctx, tenant.ID, model.NotifInvite, text, "/tenant/invites"); err != nil {
		h.logger.Warn("invite notification", "invite_id", inv.ID, "error", err)
	}
	h.audit.Log(ctx, c.User, "tenant_invited", "invite", itoa(inv.ID), tenant.AccountNumber+" "+pid+"/"+label)
	return c.Flash(managerHome, "Invite sent to "+tenant.AccountNumber+".", false)
}

func (h *ManagerHandler) ListingRequest(c *router.Context) error {
	pid := c.Form("property_id")
	owned, err := h.owns(c, pid)
	if err != nil {
		return err
	}
	if !owned {
		return c.Flash(managerHome, "Property not found.", true)
	}

	req := model.ListingRequest{
		PropertyID:  pid,
		Title:       c.Form("title"),
		Price:       c.FormInt("price"),
		Location:    c.Form("location"),
		Beds:        int(c.FormInt("beds")),
		Baths:       int(c.FormInt("baths")),
		Category:    c.Form("category"),
		Description: c.Form("description"),
	}
	if unitID := c.FormInt("unit_id"); unitID > 0 {
		unit, err := h.properties.GetUnitByID(unitID)
		if err != nil {
			return err
		}
		if unit == nil || unit.PropertyID != pid {
			return c.Flash(managerHome, "Unit not found.", true)
		}
		req.UnitID = &unitID
	}
	switch {
	case !minLen(req.Title, 3):
		return c.Flash(managerHome, "Title must be at least 3 characters.", true)
	case req.Price <= 0:
		return c.Flash(managerHome, "Price must be greater than zero.", true)
	case !minLen(req.Location, 2):
		return c.Flash(managerHome, "Location is required.", true)
	case !oneOf(req.Category, model.ListingCategories):
		return c.Flash(managerHome, "Choose a listing category.", true)
	}
	uid := c.User.ID
	req.SubmittedBy = &uid

	saved, err := h.listings.CreateRequest(req)
	if err != nil {
		return err
	}
	ctx := c.R.Context()
	h.audit.Log(ctx, c.User, "listing_request_submitted", "listing_request", itoa(saved.ID), saved.Title)
	notifyRole(ctx, h.notifier, h.users, model.RoleAdmin, model.NotifSystem,
		"New listing submitted for review: "+saved.Title+".", "/admin/submissions", h.logger)
	return c.Flash(managerHome, "Listing submitted for review.", false)
}

func (h *ManagerHandler) UpdateMaintenance(c *router.Context) error {
	id := c.FormInt("request_id")
	status := c.Form("status")
	if !oneOf(status, model.MaintenanceStatuses) {
		return c.Flash(managerHome, "Unknown status.", true)
	}
	ok, err := h.maintenance.UpdateStatusForOwner(id, c.Account(), status)
	if err != nil {
		return err
	}
	if !ok {
		return c.Flash(managerHome, "Maintenance request not found.", true)
	}

	ctx := c.R.Context()
	if m, err := h.maintenance.Get(id); err == nil && m != nil {
		text := fmt.Sprintf("Maintenance request #%d is now %s.", id, strings.ReplaceAll(status, "_", " "))
		if err := h.notifier.NotifyAccount(ctx, m.TenantAccount, model.NotifMaintenance, text, "/tenant/maintenance"); err != nil {
			h.logger.Warn("maintenance notification", "request_id", id, "error", err)
		}
	}
	h.audit.Log(ctx, c.User, "maintenance_updated", "maintenance_request", itoa(id), status)
	return c.Flash(managerHome, "Maintenance request updated.", false)
}

func (h *ManagerHandler) UpdatePayment(c *router.Context) error {
	id := c.FormInt("payment_id")
	status := c.Form("status")
	if !oneOf(status, model.PaymentStatuses) {
		return c.Flash(managerHome, "Unknown status.", true)
	}
	ok, err := h.payments.UpdateStatusForOwner(id, c.Account(), status)
	if err != nil {
		return err
	}
	if !ok {
		return c.Flash(managerHome, "Payment not found.", true)
	}

	ctx := c.R.Context()
	if p, err := h.payments.Get(id); err == nil && p != nil {
		text := fmt.Sprintf("Your payment of $%d is now %s.", p.Amount, status)
		if err := h.notifier.NotifyAccount(ctx, p.PayerAccount, model.NotifPayment, text, "/tenant/payments"); err != nil {
			h.logger.Warn("payment notification", "payment_id", id, "error", err)
		}
	}
	h.audit.Log(ctx, c.User, "payment_updated", "payment", itoa(id), status)
	return c.Flash(managerHome, "Payment updated.", false)
}

func (h *ManagerHandler) ExportProperties(c *router.Context) error {
	props, err := h.properties.ListByOwner(c.Account())
	if err != nil {
		return err
	}
	rows := [][]string{{"property_id", "name", "type", "location", "unit", "beds", "baths", "rent", "occupied"}}
	for _, p := range props {
		units, err := h.properties.Units(p.ID)
		if err != nil {
			return err
		}
		for _, u := range units {
			occ := "no"
			if u.IsOccupied {
				occ = "yes"
			}
			rows = append(rows, []string{
				p.ID, p.Name, p.PropertyType, p.Location, u.Label,
				fmt.Sprint(u.Beds), fmt.Sprint(u.Baths), itoa(u.Rent), occ,
			})
		}
	}
	return c.CSV("properties.csv", rows)
}

func (h *ManagerHandler) ExportPayments(c *router.Context) error {
	payments, err := h.payments.ListForOwner(c.Account())
	if err != nil {
		return err
	}
	rows := [][]string{{"id", "created_at", "payer_account", "type", "provider", "amount", "status"}}
	for _, p := range payments {
		rows = append(rows, []string{
			itoa(p.ID), p.CreatedAt.UTC().Format("2006-01-02 15:04:05"), p.PayerAccount,
			p.PaymentType, p.Provider, itoa(p.Amount), p.Status,
		})
	}
	return c.CSV("payments.csv", rows)
}

// scope is the owner filter for lead and lease queries: admins see every
// property, managers their own.
func scope(c *router.Context) string {
	if c.User.IsAdmin() {
		return ""
	}
	return c.Account()
}

func (h *ManagerHandler) Inquiries(c *router.Context) error {
	status := c.R.URL.Query().Get("status")
	if !oneOf(status, model.InquiryStatuses) {
		status = ""
	}
	items, err := h.listings.ListInquiries(scope(c), status)
	if err != nil {
		return err
	}
	return c.HTML("manager_inquiries", "Inquiries", map[string]any{
		"Inquiries": items,
		"Status":    status,
		"Statuses":  model.InquiryStatuses,
	})
}

func (h *ManagerHandler) UpdateInquiry(c *router.Context) error {
	const back = "/manager/inquiries"
	id := c.FormInt("id")
	status := c.Form("status")
	if id <= 0 {
		return c.Flash(back, "Inquiry ID is missing.", true)
	}
	if !oneOf(status, model.InquiryStatuses) {
		return c.Flash(back, "Unknown status.", true)
	}
	ok, err := h.listings.SetInquiryStatus(id, scope(c), status)
	if err != nil {
		return err
	}
	if !ok {
		return c.Flash(back, "Inquiry was not found.", true)
	}
	h.audit.Log(c.R.Context(), c.User, "inquiry_status_updated", "inquiry", itoa(id), "status="+status)
	return c.Flash(back, fmt.Sprintf("Inquiry #%d updated to %s.", id, status), false)
}

func (h *ManagerHandler) Applications(c *router.Context) error {
	status := c.R.URL.Query().Get("status")
	if !oneOf(status, model.ApplicationStatuses) {
		status = ""
	}
	items, err := h.listings.ListApplications(scope(c), status)
	if err != nil {
		return err
	}
	return c.HTML("manager_applications", "Applications", map[string]any{
		"Applications": items,
		"Status":       status,
		"Statuses":     model.ApplicationStatuses,
	})
}

// UpdateApplication moves an application through review and tells a
// signed-up applicant.
func (h *ManagerHandler) UpdateApplication(c *router.Context) error {
	const back = "/manager/applications"
	id := c.FormInt("id")
	status := c.Form("status")
	if id <= 0 {
		return c.Flash(back, "Application ID is missing.", true)
	}
	if !oneOf(status, model.ApplicationStatuses) {
		return c.Flash(back, "Unknown status.", true)
	}
	app, err := h.listings.SetApplicationStatus(id, scope(c), status)
	if err != nil {
		return err
	}
	if app == nil {
		return c.Flash(back, "Application was not found.", true)
	}
	ctx := c.R.Context()
	if app.ApplicantUserID != nil {
		text := "Your application status: " + strings.ReplaceAll(status, "_", " ") + "."
		if _, err := h.notifier.Notify(ctx, *app.ApplicantUserID, model.NotifApplication, text, "/notifications"); err != nil {
			h.logger.Warn("application notification", "application_id", id, "error", err)
		}
	}
	h.audit.Log(ctx, c.User, "application_status_updated", "application", itoa(id), "status="+status)
	return c.Flash(back, fmt.Sprintf("Application #%d updated to %s.", id, status), false)
}

func (h *ManagerHandler) Leases(c *router.Context) error {
	leases, err := h.leases.ListByOwner(c.Account())
	if err != nil {
		return err
	}
	return c.HTML("manager_leases", "Leases", map[string]any{"Leases": leases})
}

// EndLease deactivates a lease and frees its unit for a new invite.
func (h *ManagerHandler) EndLease(c *router.Context) error {
	const back = "/manager/leases"
	id := c.FormInt("lease_id")
	if id <= 0 {
		return c.Flash(back, "Lease ID is missing.", true)
	}
	l, err := h.leases.End(id, scope(c))
	switch {
	case errors.Is(err, store.ErrLeaseEnded):
		return c.Flash(back, "Lease is already inactive.", true)
	case err != nil:
		return err
	case l == nil:
		return c.Flash(back, "Lease was not found.", true)
	}
	ctx := c.R.Context()
	text := fmt.Sprintf("Lease ended: %s / %s.", l.PropertyID, l.UnitLabel)
	if err := h.notifier.NotifyAccount(ctx, l.TenantAccount, model.NotifLease, text, "/tenant/lease"); err != nil {
		h.logger.Warn("lease notification", "lease_id", id, "error", err)
	}
	h.audit.Log(ctx, c.User, "lease_ended", "lease", itoa(id), l.PropertyID+"/"+l.UnitLabel)
	return c.Flash(back, "Lease ended.", false)
}

package handler

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/atlasbahamas/atlas/internal/audit"
	"github.com/atlasbahamas/atlas/internal/auth"
	"github.com/atlasbahamas/atlas/internal/model"
	"github.com/atlasbahamas/atlas/internal/notify"
	"github.com/atlasbahamas/atlas/internal/permission"
	"github.com/atlasbahamas/atlas/internal/ratelimit"
	"github.com/atlasbahamas/atlas/internal/router"
	"github.com/atlasbahamas/atlas/internal/store"
)

const (
	auditPageSize  = 50
	auditExportMax = 5000
)

type AdminHandler struct {
	users       *store.UserStore
	properties  *store.PropertyStore
	listings    *store.ListingStore
	maintenance *store.MaintenanceStore
	auditLog    *store.AuditStore
	perms       *permission.Resolver
	notifier    *notify.Notifier
	audit       *audit.Logger
	logger      *slog.Logger
}

func NewAdminHandler(
	us *store.UserStore,
	ps *store.PropertyStore,
	ls *store.ListingStore,
	ms *store.MaintenanceStore,
	as *store.AuditStore,
	perms *permission.Resolver,
	n *notify.Notifier,
	al *audit.Logger,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		users:       us,
		properties:  ps,
		listings:    ls,
		maintenance: ms,
		auditLog:    as,
		perms:       perms,
		notifier:    n,
		audit:       al,
		logger:      logger,
	}
}

func (h *AdminHandler) Dashboard(c *router.Context) error {
	counts := make(map[string]int, len(permission.Roles))
	for _, role := range permission.Roles {
		n, err := h.users.CountByRole(role)
		if err != nil {
			return err
		}
		counts[role] = n
	}
	props, err := h.properties.Count()
	if err != nil {
		return err
	}
	open, err := h.maintenance.CountOpen()
	if err != nil {
		return err
	}
	pending, err := h.listings.CountPendingRequests()
	if err != nil {
		return err
	}
	recent, err := h.auditLog.List(model.AuditFilter{Limit: 10})
	if err != nil {
		return err
	}
	lock := c.State.LoginGuard.Snapshot()
	return c.HTML("admin", "Admin", map[string]any{
		"Users":       counts,
		"Properties":  props,
		"OpenMaint":   open,
		"Pending":     pending,
		"Recent":      recent,
		"LoginGuard":  lock,
		"LastSweep":   c.State.LastSweep(),
		"RateBuckets": c.State.Window.Len(),
	})
}

func (h *AdminHandler) Permissions(c *router.Context) error {
	rows, err := h.perms.Matrix()
	if err != nil {
		return err
	}
	return c.HTML("admin_permissions", "Permissions", map[string]any{
		"Rows":      rows,
		"Roles":     permission.Roles,
		"CanManage": h.perms.Allowed(c.User, permission.ManageAction),
	})
}

// UpdatePermissions stores the submitted matrix. A checkbox named
// "role|action" that is absent means denied.
func (h *AdminHandler) UpdatePermissions(c *router.Context) error {
	changed := 0
	for _, action := range permission.Actions() {
		for _, role := range permission.Roles {
			want := c.Form(role+"|"+action) != ""
			if want == h.perms.RoleAllowed(role, action) {
				continue
			}
			if err := h.perms.Set(role, action, want); err != nil {
				return err
			}
			changed++
		}
	}
	h.audit.Log(c.R.Context(), c.User, "permissions_updated", "role_permissions", "", fmt.Sprintf("%d change(s)", changed))
	return c.Flash("/admin/permissions", fmt.Sprintf("Saved %d permission change(s).", changed), false)
}

func (h *AdminHandler) ResetPermissions(c *router.Context) error {
	if err := h.perms.Reset(); err != nil {
		return err
	}
	h.audit.Log(c.R.Context(), c.User, "permissions_reset", "role_permissions", "", "")
	return c.Flash("/admin/permissions", "Permissions restored to defaults.", false)
}

type userRow struct {
	model.User
	Lock ratelimit.UsernameStatus
}

func (h *AdminHandler) Users(c *router.Context) error {
	all, err := h.users.List()
	if err != nil {
		return err
	}
	rows := make([]userRow, 0, len(all))
	for _, u := range all {
		rows = append(rows, userRow{User: u, Lock: c.State.LoginGuard.StatusForUsername(u.Username)})
	}
	return c.HTML("admin_users", "Users", map[string]any{
		"Users": rows,
		"Roles": permission.Roles,
	})
}

func (h *AdminHandler) UpdateRole(c *router.Context) error {
	id := c.FormInt("user_id")
	role, ok := auth.ParseRole(c.Form("role"))
	if !ok {
		return c.Flash("/admin/users", "Unknown role.", true)
	}
	target, err := h.users.GetByID(id)
	if err != nil {
		return err
	}
	if target == nil {
		return c.Flash("/admin/users", "User not found.", true)
	}

	old, err := h.users.UpdateRole(id, role)
	if errors.Is(err, store.ErrLastAdmin) {
		return c.Flash("/admin/users", "At least one admin account must remain.", true)
	}
	if err != nil {
		return err
	}
	if old == role {
		return c.Flash("/admin/users", "Role unchanged.", false)
	}

	ctx := c.R.Context()
	h.audit.Log(ctx, c.User, "user_role_updated", "user", itoa(id), old+"->"+role)
	text := "Your account role is now " + auth.RoleLabel(role) + "."
	if _, err := h.notifier.Notify(ctx, id, model.NotifSystem, text, auth.RoleHome(role)); err != nil {
		h.logger.Warn("role change notification", "user_id", id, "error", err)
	}
	return c.Flash("/admin/users", target.Username+" is now "+auth.RoleLabel(role)+".", false)
}

func (h *AdminHandler) Unlock(c *router.Context) error {
	username := c.Form("username")
	if username == "" {
		return c.Flash("/admin/users", "Username is required.", true)
	}
	n := c.State.LoginGuard.UnlockUsername(username)
	h.audit.Log(c.R.Context(), c.User, "login_unlocked", "user", username, fmt.Sprintf("%d record(s)", n))
	return c.Flash("/admin/users", fmt.Sprintf("Cleared %d lockout record(s) for %s.", n, username), false)
}

func auditFilter(c *router.Context) model.AuditFilter {
	return model.AuditFilter{
		Action:  c.Form("action"),
		ActorID: c.FormInt("actor"),
	}
}

func (h *AdminHandler) Audit(c *router.Context) error {
	f := auditFilter(c)
	page := max(int(c.FormInt("page")), 1)
	f.Limit = auditPageSize
	f.Offset = (page - 1) * auditPageSize

	entries, err := h.auditLog.List(f)
	if err != nil {
		return err
	}
	total, err := h.auditLog.Count(f)
	if err != nil {
		return err
	}
	pages := max((total+auditPageSize-1)/auditPageSize, 1)
	return c.HTML("admin_audit", "Audit log", map[string]any{
		"Entries": entries,
		"Filter":  f,
		"Page":    page,
		"Pages":   pages,
		"Total":   total,
		"Prev":    page - 1,
		"Next":    min(page+1, pages),
	})
}

func (h *AdminHandler) AuditExport(c *router.Context) error {
	f := auditFilter(c)
	f.Limit = auditExportMax
	entries, err := h.auditLog.List(f)
	if err != nil {
		return err
	}
	rows := [][]string{{"id", "created_at", "actor_user_id", "actor_role", "action", "entity_type", "entity_id", "details"}}
	for _, e := range entries {
		actor := ""
		if e.ActorUserID != nil {
			actor = itoa(*e.ActorUserID)
		}
		rows = append(rows, []string{
			itoa(e.ID), e.CreatedAt.UTC().Format("2006-01-02 15:04:05"), actor, e.ActorRole,
			e.Action, e.EntityType, e.EntityID, e.Details,
		})
	}
	h.audit.Log(c.R.Context(), c.User, "audit_exported", "audit_logs", "", strconv.Itoa(len(entries))+" row(s)")
	return c.CSV("audit_log.csv", rows)
}

func (h *AdminHandler) Submissions(c *router.Context) error {
	pending, err := h.listings.ListRequests("pending")
	if err != nil {
		return err
	}
	all, err := h.listings.ListRequests("")
	if err != nil {
		return err
	}
	var reviewed []model.ListingRequest
	for _, r := range all {
		if r.Status != "pending" {
			reviewed = append(reviewed, r)
		}
	}
	return c.HTML("admin_submissions", "Listing submissions", map[string]any{
		"Pending":  pending,
		"Reviewed": reviewed,
	})
}

func (h *AdminHandler) Approve(c *router.Context) error {
	id := c.FormInt("request_id")
	req, err := h.listings.GetRequest(id)
	if err != nil {
		return err
	}
	listingID, err := h.listings.ApproveRequest(id, c.Form("note"))
	if errors.Is(err, sql.ErrNoRows) || req == nil {
		return c.Flash("/admin/submissions", "That request is no longer pending.", true)
	}
	if err != nil {
		return err
	}

	ctx := c.R.Context()
	h.audit.Log(ctx, c.User, "listing_request_approved", "listing_request", itoa(id), "listing "+itoa(listingID))
	if req.SubmittedBy != nil {
		text := "Your listing \"" + req.Title + "\" was approved."
		if _, err := h.notifier.Notify(ctx, *req.SubmittedBy, model.NotifSystem, text, "/listing/"+itoa(listingID)); err != nil {
			h.logger.Warn("approval notification", "request_id", id, "error", err)
		}
	}
	return c.Flash("/admin/submissions", "Listing published.", false)
}

func (h *AdminHandler) Reject(c *router.Context) error {
	id := c.FormInt("request_id")
	req, err := h.listings.GetRequest(id)
	if err != nil {
		return err
	}
	note := c.Form("note")
	err = h.listings.RejectRequest(id, note)
	if errors.Is(err, sql.ErrNoRows) || req == nil {
		return c.Flash("/admin/submissions", "That request is no longer pending.", true)
	}
	if err != nil {
		return err
	}

	ctx := c.R.Context()
	h.audit.Log(ctx, c.User, "listing_request_rejected", "listing_request", itoa(id), note)
	if req.SubmittedBy != nil {
		text := "Your listing \"" + req.Title + "\" was not approved."
		if note != "" {
			text += " Note: " + note
		}
		if _, err := h.notifier.Notify(ctx, *req.SubmittedBy, model.NotifSystem, text, "/property-manager"); err != nil {
			h.logger.Warn("rejection notification", "request_id", id, "error", err)
		}
	}
	return c.Flash("/admin/submissions", "Listing request rejected.", false)
}

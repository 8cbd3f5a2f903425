// Package permission resolves (role, action) pairs against an overridable
// matrix backed by role_permissions, falling back to compiled defaults.
package permission

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/atlasbahamas/atlas/internal/auth"
	"github.com/atlasbahamas/atlas/internal/model"
)

// ManageAction gates edits to the matrix itself. Admins are not exempt from it.
const ManageAction = "admin.permissions.manage"

// Roles lists the roles the matrix covers, in display order.
var Roles = []string{model.RoleTenant, model.RolePropertyManager, model.RoleAdmin}

var (
	tenantRoles  = []string{model.RoleTenant, model.RoleAdmin}
	managerRoles = []string{model.RolePropertyManager, model.RoleAdmin}
	adminRoles   = []string{model.RoleAdmin}
)

// Defaults maps every known action to the roles allowed when no override exists.
var Defaults = map[string][]string{
	"tenant.portal":               tenantRoles,
	"tenant.payment.submit":       tenantRoles,
	"tenant.maintenance.submit":   tenantRoles,
	"tenant.invite.respond":       tenantRoles,
	"landlord.portal":             managerRoles,
	"landlord.property.manage":    managerRoles,
	"landlord.tenant_sync.manage": managerRoles,
	"landlord.listing.submit":     managerRoles,
	"manager.portal":              managerRoles,
	"manager.property.manage":     managerRoles,
	"manager.leases.manage":       managerRoles,
	"manager.ops.update":          managerRoles,
	"manager.tenant_sync.manage":  managerRoles,
	"manager.listing.submit":      managerRoles,
	"admin.portal":                adminRoles,
	"admin.submissions.review":    adminRoles,
	ManageAction:                  adminRoles,
	"admin.audit.read":            adminRoles,
}

// Labels are the human descriptions shown on the permissions page.
var Labels = map[string]string{
	"tenant.portal":               "Tenant portal access",
	"tenant.payment.submit":       "Submit rent and bill payments",
	"tenant.maintenance.submit":   "Submit maintenance requests",
	"tenant.invite.respond":       "Accept or decline property invites",
	"landlord.portal":             "Landlord portal access",
	"landlord.property.manage":    "Register and edit properties (landlord)",
	"landlord.tenant_sync.manage": "Invite tenants to units (landlord)",
	"landlord.listing.submit":     "Submit listings for review (landlord)",
	"manager.portal":              "Property manager portal access",
	"manager.property.manage":     "Register and edit properties",
	"manager.leases.manage":       "Manage leases",
	"manager.ops.update":          "Update maintenance and payment status",
	"manager.tenant_sync.manage":  "Invite tenants to units",
	"manager.listing.submit":      "Submit listings for review",
	"admin.portal":                "Admin portal access",
	"admin.submissions.review":    "Review listing submissions",
	ManageAction:                  "Edit the permission matrix",
	"admin.audit.read":            "Read the audit log",
}

// Actions returns every known action, sorted.
func Actions() []string {
	out := make([]string, 0, len(Defaults))
	for a := range Defaults {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// DefaultAllowed reports the compiled default for (role, action). Unknown
// actions are admin-only.
func DefaultAllowed(role, action string) bool {
	roles, ok := Defaults[action]
	if !ok {
		return role == model.RoleAdmin
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Store is the persistence the resolver needs.
type Store interface {
	Get(role, action string) (*bool, error)
	Upsert(role, action string, allowed bool) error
	ReplaceAll(entries []model.PermissionEntry) error
	List() ([]model.PermissionEntry, error)
}

type Resolver struct {
	store  Store
	logger *slog.Logger
}

func NewResolver(store Store, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// Allowed decides whether user may perform action. A nil user is never
// allowed. Store errors fall back to the compiled default.
func (r *Resolver) Allowed(user *model.User, action string) bool {
	if user == nil {
		return false
	}
	role := auth.NormalizeRole(user.Role)
	if role == model.RoleAdmin && action != ManageAction {
		return true
	}
	return r.RoleAllowed(role, action)
}

// RoleAllowed resolves a bare role without the admin bypass.
func (r *Resolver) RoleAllowed(role, action string) bool {
	role = auth.NormalizeRole(role)
	override, err := r.store.Get(role, action)
	if err != nil {
		r.logger.Error("permission lookup failed", "role", role, "action", action, "error", err)
		return DefaultAllowed(role, action)
	}
	if override != nil {
		return *override
	}
	return DefaultAllowed(role, action)
}

// Set stores an override for (role, action).
func (r *Resolver) Set(role, action string, allowed bool) error {
	role = auth.NormalizeRole(role)
	if _, ok := Defaults[action]; !ok {
		return fmt.Errorf("unknown action %q", action)
	}
	return r.store.Upsert(role, action, allowed)
}

// Reset rewrites every (role, action) pair to its default in one transaction.
func (r *Resolver) Reset() error {
	entries := make([]model.PermissionEntry, 0, len(Defaults)*len(Roles))
	for _, action := range Actions() {
		for _, role := range Roles {
			entries = append(entries, model.PermissionEntry{
				Role:    role,
				Action:  action,
				Allowed: DefaultAllowed(role, action),
			})
		}
	}
	return r.store.ReplaceAll(entries)
}

// Cell is one entry of the rendered matrix.
type Cell struct {
	Role       string
	Allowed    bool
	Overridden bool
}

// Row is one action of the rendered matrix.
type Row struct {
	Action string
	Label  string
	Cells  []Cell
}

// Matrix returns the effective permissions for every action and role.
func (r *Resolver) Matrix() ([]Row, error) {
	stored, err := r.store.List()
	if err != nil {
		return nil, fmt.Errorf("load permission matrix: %w", err)
	}
	overrides := make(map[[2]string]bool, len(stored))
	for _, e := range stored {
		overrides[[2]string{e.Role, e.Action}] = e.Allowed
	}

	var rows []Row
	for _, action := range Actions() {
		row := Row{Action: action, Label: Labels[action]}
		for _, role := range Roles {
			def := DefaultAllowed(role, action)
			val, ok := overrides[[2]string{role, action}]
			if !ok {
				val = def
			}
			row.Cells = append(row.Cells, Cell{Role: role, Allowed: val, Overridden: ok && val != def})
		}
		rows = append(rows, row)
	}
	return rows, nil
}

package auth

import (
	"strings"

	"github.com/atlasbahamas/atlas/internal/model"
)

// NormalizeRole folds legacy aliases onto the three stored roles. Anything
// unrecognised becomes tenant.
func NormalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "property_manager", "manager", "landlord":
		return model.RolePropertyManager
	case "admin":
		return model.RoleAdmin
	default:
		return model.RoleTenant
	}
}

// ParseRole accepts a stored role or one of its aliases and returns the stored
// form. Unknown values are rejected rather than folded onto tenant.
func ParseRole(role string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "tenant", "property_manager", "manager", "landlord", "admin":
		return NormalizeRole(role), true
	}
	return "", false
}

// RoleHome is the landing page for a role.
func RoleHome(role string) string {
	switch NormalizeRole(role) {
	case model.RoleAdmin:
		return "/admin"
	case model.RolePropertyManager:
		return "/property-manager"
	default:
		return "/tenant"
	}
}

// RoleLabel is the human name shown in the UI.
func RoleLabel(role string) string {
	switch NormalizeRole(role) {
	case model.RoleAdmin:
		return "Admin"
	case model.RolePropertyManager:
		return "Property Manager"
	default:
		return "Tenant"
	}
}

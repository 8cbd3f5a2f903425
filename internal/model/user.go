package model

import "time"

// Roles stored in users.role.
const (
	RoleTenant          = "tenant"
	RolePropertyManager = "property_manager"
	RoleAdmin           = "admin"
)

type User struct {
	ID            int64     `json:"id"`
	AccountNumber string    `json:"account_number"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name"`
	Phone         string    `json:"phone"`
	Role          string    `json:"role"`
	PasswordSalt  string    `json:"-"`
	PasswordHash  string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

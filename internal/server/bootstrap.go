package server

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/atlasbahamas/atlas/internal/auth"
	"github.com/atlasbahamas/atlas/internal/config"
	"github.com/atlasbahamas/atlas/internal/model"
	"github.com/atlasbahamas/atlas/internal/store"
)

// ErrWeakPassword is returned when an admin password fails the policy.
var ErrWeakPassword = errors.New("password does not meet the policy")

// CreateAdmin inserts an admin account after checking the password policy.
func CreateAdmin(users *store.UserStore, b config.BootstrapAdmin) (*model.User, error) {
	if problems := auth.PolicyErrors(b.Password); len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, strings.Join(problems, ", "))
	}
	salt, hash, err := auth.HashPassword(b.Password)
	if err != nil {
		return nil, err
	}
	name := b.FullName
	if name == "" {
		name = "Administrator"
	}
	return users.Create(store.NewUser{
		Username:     b.Username,
		Email:        b.Email,
		FullName:     name,
		Role:         model.RoleAdmin,
		PasswordSalt: salt,
		PasswordHash: hash,
	})
}

// BootstrapAdmin creates the configured admin when no admin exists yet. It
// is a no-op when the bootstrap settings are incomplete.
func BootstrapAdmin(users *store.UserStore, b config.BootstrapAdmin, logger *slog.Logger) error {
	if !b.Enabled() {
		return nil
	}
	n, err := users.CountByRole(model.RoleAdmin)
	if err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if n > 0 {
		return nil
	}
	u, err := CreateAdmin(users, b)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	logger.Info("bootstrap admin created", "username", u.Username, "account", u.AccountNumber)
	return nil
}

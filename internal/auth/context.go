package auth

import (
	"context"

	"github.com/atlasbahamas/atlas/internal/model"
)

type identityKey struct{}

// Identity is the signed-in caller the router attaches to the request
// context. Code that only has a context (audit, background work started by
// a request) reads it from here.
type Identity struct {
	UserID  int64
	Account string
	Role    string
}

// WithUser attaches u's identity to ctx. A nil user leaves ctx unchanged.
func WithUser(ctx context.Context, u *model.User) context.Context {
	if u == nil {
		return ctx
	}
	return context.WithValue(ctx, identityKey{}, Identity{
		UserID:  u.ID,
		Account: u.AccountNumber,
		Role:    NormalizeRole(u.Role),
	})
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// IsAdmin reports whether the caller in ctx is an admin.
func IsAdmin(ctx context.Context) bool {
	id, ok := IdentityFrom(ctx)
	return ok && id.Role == model.RoleAdmin
}

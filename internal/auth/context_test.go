package auth

import (
	"context"
	"testing"

	"github.com/atlasbahamas/atlas/internal/model"
)

func TestWithUserRoundTrip(t *testing.T) {
	u := &model.User{ID: 9, AccountNumber: "A00009", Role: "landlord"}
	id, ok := IdentityFrom(WithUser(context.Background(), u))
	if !ok {
		t.Fatal("identity missing")
	}
	if id.UserID != 9 || id.Account != "A00009" {
		t.Errorf("identity = %+v", id)
	}
	if id.Role != model.RolePropertyManager {
		t.Errorf("role = %q, want normalized %q", id.Role, model.RolePropertyManager)
	}
}

func TestAnonymousContext(t *testing.T) {
	ctx := WithUser(context.Background(), nil)
	if _, ok := IdentityFrom(ctx); ok {
		t.Error("nil user must not attach an identity")
	}
	if IsAdmin(ctx) {
		t.Error("anonymous context reported admin")
	}
	if !IsAdmin(WithUser(ctx, &model.User{ID: 1, Role: model.RoleAdmin})) {
		t.Error("admin not detected")
	}
}

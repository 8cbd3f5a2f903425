package permission

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/atlasbahamas/atlas/internal/database"
	"github.com/atlasbahamas/atlas/internal/model"
	"github.com/atlasbahamas/atlas/internal/store"
)

func setupResolver(t *testing.T) (*Resolver, *store.PermissionStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ps := store.NewPermissionStore(db)
	return NewResolver(ps, slog.New(slog.NewTextHandler(io.Discard, nil))), ps
}

func user(role string) *model.User {
	return &model.User{ID: 1, Role: role}
}

func TestDefaults(t *testing.T) {
	r, _ := setupResolver(t)

	tests := []struct {
		role, action string
		want         bool
	}{
		{"tenant", "tenant.portal", true},
		{"tenant", "manager.portal", false},
		{"property_manager", "manager.portal", true},
		{"landlord", "landlord.property.manage", true},
		{"manager", "tenant.portal", false},
		{"property_manager", "admin.portal", false},
		{"admin", "admin.audit.read", true},
	}
	for _, tt := range tests {
		if got := r.Allowed(user(tt.role), tt.action); got != tt.want {
			t.Errorf("Allowed(%s, %s) = %v, want %v", tt.role, tt.action, got, tt.want)
		}
	}
}

func TestUnknownActionAdminOnly(t *testing.T) {
	r, _ := setupResolver(t)
	if r.Allowed(user("tenant"), "made.up") {
		t.Error("tenant allowed unknown action")
	}
	if !r.Allowed(user("admin"), "made.up") {
		t.Error("admin denied unknown action")
	}
	if r.Allowed(nil, "tenant.portal") {
		t.Error("nil user allowed")
	}
}

func TestOverrideWins(t *testing.T) {
	r, _ := setupResolver(t)

	if err := r.Set("tenant", "tenant.portal", false); err != nil {
		t.Fatalf("set: %v", err)
	}
	if r.Allowed(user("tenant"), "tenant.portal") {
		t.Error("override deny ignored")
	}
	if err := r.Set("manager", "tenant.portal", true); err != nil {
		t.Fatalf("set alias role: %v", err)
	}
	if !r.Allowed(user("property_manager"), "tenant.portal") {
		t.Error("override grant via alias ignored")
	}
}

func TestAdminBypassExceptManage(t *testing.T) {
	r, _ := setupResolver(t)

	r.Set("admin", "admin.audit.read", false)
	if !r.Allowed(user("admin"), "admin.audit.read") {
		t.Error("admin should bypass ordinary overrides")
	}

	r.Set("admin", ManageAction, false)
	if r.Allowed(user("admin"), ManageAction) {
		t.Error("manage action must resolve through the matrix")
	}
}

func TestResetRestoresDefaults(t *testing.T) {
	r, ps := setupResolver(t)
	r.Set("tenant", "admin.portal", true)
	r.Set("admin", ManageAction, false)

	if err := r.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if r.Allowed(user("tenant"), "admin.portal") {
		t.Error("tenant admin.portal survived reset")
	}
	if !r.Allowed(user("admin"), ManageAction) {
		t.Error("admin manage not restored")
	}

	all, _ := ps.List()
	if len(all) != len(Defaults)*len(Roles) {
		t.Errorf("stored rows = %d, want %d", len(all), len(Defaults)*len(Roles))
	}
}

func TestSetUnknownAction(t *testing.T) {
	r, _ := setupResolver(t)
	if err := r.Set("tenant", "nope", true); err == nil {
		t.Error("expected error for unknown action")
	}
}

type failingStore struct{ Store }

func (failingStore) Get(string, string) (*bool, error) { return nil, errors.New("db down") }

func TestStoreErrorFallsBackToDefault(t *testing.T) {
	r := NewResolver(failingStore{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if !r.Allowed(user("tenant"), "tenant.portal") {
		t.Error("default not used on store error")
	}
	if r.Allowed(user("tenant"), "admin.portal") {
		t.Error("fallback granted admin action")
	}
}

func TestMatrixMarksOverrides(t *testing.T) {
	r, _ := setupResolver(t)
	r.Set("tenant", "tenant.portal", false)

	rows, err := r.Matrix()
	if err != nil {
		t.Fatalf("matrix: %v", err)
	}
	if len(rows) != len(Defaults) {
		t.Fatalf("rows = %d, want %d", len(rows), len(Defaults))
	}
	for _, row := range rows {
		if row.Action != "tenant.portal" {
			continue
		}
		c := row.Cells[0]
		if c.Role != "tenant" || c.Allowed || !c.Overridden {
			t.Errorf("tenant cell = %+v", c)
		}
	}
}

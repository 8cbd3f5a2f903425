package store

import (
	"testing"

	"github.com/atlasbahamas/atlas/internal/model"
)

func TestPermissionGetMissing(t *testing.T) {
	ps := NewPermissionStore(setupTestDB(t))

	v, err := ps.Get("tenant", "tenant.portal")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v != nil {
		t.Errorf("expected nil override, got %v", *v)
	}
}

func TestPermissionUpsert(t *testing.T) {
	ps := NewPermissionStore(setupTestDB(t))

	if err := ps.Upsert("tenant", "tenant.portal", false); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := ps.Upsert("tenant", "tenant.portal", true); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	v, err := ps.Get("tenant", "tenant.portal")
	if err != nil || v == nil || !*v {
		t.Fatalf("Get = %v, %v; want true", v, err)
	}

	all, err := ps.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("list length = %d, want 1", len(all))
	}
}

func TestPermissionReplaceAll(t *testing.T) {
	ps := NewPermissionStore(setupTestDB(t))
	ps.Upsert("tenant", "admin.portal", true)

	err := ps.ReplaceAll([]model.PermissionEntry{
		{Role: "tenant", Action: "admin.portal", Allowed: false},
		{Role: "admin", Action: "admin.portal", Allowed: true},
	})
	if err != nil {
		t.Fatalf("replace all: %v", err)
	}
	v, _ := ps.Get("tenant", "admin.portal")
	if v == nil || *v {
		t.Errorf("tenant admin.portal = %v, want false", v)
	}
	v, _ = ps.Get("admin", "admin.portal")
	if v == nil || !*v {
		t.Errorf("admin admin.portal = %v, want true", v)
	}
}

package store

import (
	"testing"

	"github.com/atlasbahamas/atlas/internal/model"
)

func TestPushSubscribeUpsert(t *testing.T) {
	db := setupTestDB(t)
	ps := NewPushStore(db)
	us := NewUserStore(db)
	a := mustCreateUser(t, us, "ann", model.RoleTenant)
	b := mustCreateUser(t, us, "ben", model.RoleTenant)

	sub, err := ps.Subscribe(a.ID, "https://push.example.com/sub1", "p256dh_key1", "auth_key1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if sub.ID == 0 || sub.UserID != a.ID {
		t.Errorf("subscription = %+v", sub)
	}

	moved, err := ps.Subscribe(b.ID, "https://push.example.com/sub1", "p256dh_key2", "auth_key2")
	if err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	if moved.ID != sub.ID || moved.UserID != b.ID || moved.AuthKey != "auth_key2" {
		t.Errorf("moved = %+v", moved)
	}
	subs, _ := ps.ListByUser(a.ID)
	if len(subs) != 0 {
		t.Errorf("ann still has %d subscriptions", len(subs))
	}
}

func TestPushUnsubscribe(t *testing.T) {
	db := setupTestDB(t)
	ps := NewPushStore(db)
	u := mustCreateUser(t, NewUserStore(db), "ann", model.RoleTenant)

	ps.Subscribe(u.ID, "https://push.example.com/a", "k", "a")
	ps.Subscribe(u.ID, "https://push.example.com/b", "k", "a")

	if err := ps.Unsubscribe(u.ID, "https://push.example.com/a"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if err := ps.DeleteByEndpoint("https://push.example.com/b"); err != nil {
		t.Fatalf("delete by endpoint: %v", err)
	}
	subs, _ := ps.ListByUser(u.ID)
	if len(subs) != 0 {
		t.Errorf("subscriptions left = %d", len(subs))
	}
}

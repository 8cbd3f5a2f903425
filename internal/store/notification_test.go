package store

import (
	"testing"
	"time"

	"github.com/atlasbahamas/atlas/internal/model"
)

func TestNotificationsUnreadAndMarkRead(t *testing.T) {
	db := setupTestDB(t)
	ns := NewNotificationStore(db)
	u := mustCreateUser(t, NewUserStore(db), "alice", model.RoleTenant)

	ns.Create(u.ID, "Rent received", "/tenant/payments", model.NotifPayment)
	ns.Create(u.ID, "Invite", "/tenant/invites", model.NotifInvite)

	n, err := ns.UnreadCount(u.ID)
	if err != nil || n != 2 {
		t.Fatalf("unread = %d, %v; want 2", n, err)
	}
	if err := ns.MarkAllRead(u.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	n, _ = ns.UnreadCount(u.ID)
	if n != 0 {
		t.Errorf("unread after mark = %d", n)
	}
	list, _ := ns.ListByUser(u.ID, 10)
	if len(list) != 2 || !list[0].IsRead {
		t.Errorf("list = %+v", list)
	}
}

func TestNotificationPreferencesDefaultsAndSave(t *testing.T) {
	db := setupTestDB(t)
	ns := NewNotificationStore(db)
	u := mustCreateUser(t, NewUserStore(db), "alice", model.RoleTenant)

	p, err := ns.GetPreferences(u.ID)
	if err != nil {
		t.Fatalf("get defaults: %v", err)
	}
	if !p.Wants(model.NotifPayment) || !p.EmailEnabled {
		t.Errorf("defaults = %+v, want all enabled", p)
	}

	p.Categories[model.NotifPayment] = false
	p.EmailEnabled = false
	if err := ns.SavePreferences(p); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ := ns.GetPreferences(u.ID)
	if got.Wants(model.NotifPayment) {
		t.Error("payment still enabled after save")
	}
	if !got.Wants(model.NotifLease) {
		t.Error("lease disabled unexpectedly")
	}
	if got.EmailEnabled {
		t.Error("email still enabled after save")
	}
}

func TestPasswordResetConsumeOnce(t *testing.T) {
	db := setupTestDB(t)
	rs := NewPasswordResetStore(db)
	u := mustCreateUser(t, NewUserStore(db), "alice", model.RoleTenant)

	if err := rs.Create(u.ID, "jti-1", time.Now().Add(30*time.Minute)); err != nil {
		t.Fatalf("create: %v", err)
	}
	ok, err := rs.Consume("jti-1")
	if err != nil || !ok {
		t.Fatalf("consume = %v, %v", ok, err)
	}
	ok, _ = rs.Consume("jti-1")
	if ok {
		t.Error("token consumed twice")
	}

	n, err := rs.Sweep(24 * time.Hour)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("swept = %d, want 1 used row", n)
	}
}

func TestPasswordResetExpiredNotConsumed(t *testing.T) {
	db := setupTestDB(t)
	rs := NewPasswordResetStore(db)
	u := mustCreateUser(t, NewUserStore(db), "alice", model.RoleTenant)

	rs.Create(u.ID, "jti-old", time.Now().Add(-time.Minute))
	if ok, _ := rs.Consume("jti-old"); ok {
		t.Error("expired token consumed")
	}
}

func TestAuditListFilter(t *testing.T) {
	db := setupTestDB(t)
	as := NewAuditStore(db)
	u := mustCreateUser(t, NewUserStore(db), "root", model.RoleAdmin)

	as.Insert(model.AuditEntry{ActorUserID: &u.ID, ActorRole: "admin", Action: "login"})
	as.Insert(model.AuditEntry{ActorUserID: &u.ID, ActorRole: "admin", Action: "permission_updated", EntityType: "role_permissions", EntityID: "tenant:tenant.portal"})
	as.Insert(model.AuditEntry{Action: "login"})

	n, err := as.Count(model.AuditFilter{Action: "login"})
	if err != nil || n != 2 {
		t.Errorf("count login = %d, %v; want 2", n, err)
	}
	list, err := as.List(model.AuditFilter{ActorID: u.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("actor list = %d, want 2", len(list))
	}
	page, _ := as.List(model.AuditFilter{Limit: 1, Offset: 1})
	if len(page) != 1 {
		t.Errorf("page length = %d, want 1", len(page))
	}
}

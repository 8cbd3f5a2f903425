package notify

import (
	"context"
	"sync"
	"testing"

	"github.com/atlasbahamas/atlas/internal/database"
	"github.com/atlasbahamas/atlas/internal/logging"
	"github.com/atlasbahamas/atlas/internal/model"
	"github.com/atlasbahamas/atlas/internal/push"
	"github.com/atlasbahamas/atlas/internal/store"
	"github.com/atlasbahamas/atlas/internal/websocket"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *fakeMailer) Configured() bool { return true }

func (m *fakeMailer) SendNotification(_ context.Context, to, text, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to+": "+text)
	return nil
}

type fakePusher struct {
	mu      sync.Mutex
	expired map[string]bool
	sent    int
}

func (p *fakePusher) Send(_ context.Context, sub *model.PushSubscription, _ push.Payload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.expired[sub.Endpoint] {
		return push.ErrExpired
	}
	p.sent++
	return nil
}

type fixture struct {
	n      *Notifier
	notes  *store.NotificationStore
	subs   *store.PushStore
	mail   *fakeMailer
	pusher *fakePusher
	user   *model.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	users := store.NewUserStore(db)
	u, err := users.Create(store.NewUser{Username: "tess", Email: "tess@example.com", Role: model.RoleTenant, PasswordSalt: "00", PasswordHash: "00"})
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		notes:  store.NewNotificationStore(db),
		subs:   store.NewPushStore(db),
		mail:   &fakeMailer{},
		pusher: &fakePusher{expired: map[string]bool{}},
		user:   u,
	}
	f.n = &Notifier{
		Store:  f.notes,
		Users:  users,
		Subs:   f.subs,
		Hub:    websocket.NewHub(logging.Discard()),
		Push:   f.pusher,
		Mail:   f.mail,
		Logger: logging.Discard(),
	}
	return f
}

func TestNotifyDelivers(t *testing.T) {
	f := setup(t)
	f.subs.Subscribe(f.user.ID, "https://push.example/live", "p", "a")
	f.subs.Subscribe(f.user.ID, "https://push.example/gone", "p", "a")
	f.pusher.expired["https://push.example/gone"] = true

	row, err := f.n.Notify(context.Background(), f.user.ID, model.NotifPayment, "Rent received", "/tenant/payments")
	if err != nil || row == nil {
		t.Fatalf("notify = %v, %v", row, err)
	}
	f.n.Wait()

	if f.pusher.sent != 1 {
		t.Errorf("pushes = %d, want 1", f.pusher.sent)
	}
	subs, _ := f.subs.ListByUser(f.user.ID)
	if len(subs) != 1 {
		t.Errorf("subscriptions = %d, want expired one removed", len(subs))
	}
	if len(f.mail.sent) != 1 || f.mail.sent[0] != "tess@example.com: Rent received" {
		t.Errorf("mail = %v", f.mail.sent)
	}
	if n, _ := f.notes.UnreadCount(f.user.ID); n != 1 {
		t.Errorf("unread = %d, want 1", n)
	}
}

func TestNotifyRespectsPreferences(t *testing.T) {
	f := setup(t)
	prefs := model.DefaultNotificationPreferences(f.user.ID)
	prefs.Categories[model.NotifInquiry] = false
	prefs.EmailEnabled = false
	if err := f.notes.SavePreferences(prefs); err != nil {
		t.Fatal(err)
	}

	row, err := f.n.Notify(context.Background(), f.user.ID, model.NotifInquiry, "New inquiry", "")
	if err != nil || row != nil {
		t.Fatalf("suppressed notify = %v, %v", row, err)
	}

	if _, err := f.n.Notify(context.Background(), f.user.ID, model.NotifLease, "Lease ready", ""); err != nil {
		t.Fatal(err)
	}
	f.n.Wait()
	if len(f.mail.sent) != 0 {
		t.Errorf("email sent with email disabled: %v", f.mail.sent)
	}
	if n, _ := f.notes.UnreadCount(f.user.ID); n != 1 {
		t.Errorf("unread = %d, want 1", n)
	}
}

func TestNotifyAccountUnknown(t *testing.T) {
	f := setup(t)
	if err := f.n.NotifyAccount(context.Background(), "A99999", model.NotifSystem, "x", ""); err != nil {
		t.Errorf("unknown account: %v", err)
	}
}

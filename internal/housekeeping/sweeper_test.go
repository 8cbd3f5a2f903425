package housekeeping

import (
	"context"
	"testing"
	"time"

	"github.com/atlasbahamas/atlas/internal/database"
	"github.com/atlasbahamas/atlas/internal/logging"
	"github.com/atlasbahamas/atlas/internal/model"
	"github.com/atlasbahamas/atlas/internal/ratelimit"
	"github.com/atlasbahamas/atlas/internal/store"
)

type evicted struct{ ids []string }

func (e *evicted) EvictIDs(_ context.Context, ids []string) { e.ids = append(e.ids, ids...) }

func TestRunSweepsExpiredRows(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	users := store.NewUserStore(db)
	u, err := users.Create(store.NewUser{Username: "tess", Email: "t@example.com", Role: model.RoleTenant, PasswordSalt: "00", PasswordHash: "00"})
	if err != nil {
		t.Fatal(err)
	}
	sessions := store.NewSessionStore(db)
	if _, _, err := sessions.Create(u.ID, "", "", time.Hour); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`UPDATE sessions SET expires_at = '2000-01-01 00:00:00'`); err != nil {
		t.Fatal(err)
	}
	resets := store.NewPasswordResetStore(db)
	if err := resets.Create(u.ID, "jti-1", time.Now().Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}

	ev := &evicted{}
	s := &Sweeper{
		Invites:    store.NewInviteStore(db),
		Sessions:   sessions,
		Resets:     resets,
		Cache:      ev,
		Window:     ratelimit.NewSlidingWindow(),
		LoginGuard: ratelimit.NewLoginGuard(5, time.Minute),
		Retention:  0,
		Logger:     logging.Discard(),
	}
	rep := s.Run(context.Background())

	if rep.SessionsDeleted != 1 || len(ev.ids) != 1 {
		t.Errorf("sessions deleted = %d, evicted = %v", rep.SessionsDeleted, ev.ids)
	}
	if rep.ResetsDeleted != 1 {
		t.Errorf("resets deleted = %d, want 1", rep.ResetsDeleted)
	}
}

func TestStartStop(t *testing.T) {
	s := &Sweeper{Window: ratelimit.NewSlidingWindow(), Logger: logging.Discard()}
	s.Start(context.Background(), 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	s.Stop()
}

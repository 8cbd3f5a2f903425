// Package housekeeping expires stale rows and trims in-memory limiter state.
package housekeeping

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/atlasbahamas/atlas/internal/ratelimit"
)

type InviteStore interface {
	CancelExpired() (int64, error)
}

type SessionStore interface {
	DeleteExpired() ([]string, error)
}

type ResetStore interface {
	Sweep(retention time.Duration) (int64, error)
}

// Evictor drops cached copies of deleted sessions.
type Evictor interface {
	EvictIDs(ctx context.Context, ids []string)
}

// Sweeper runs one housekeeping pass on demand or on a ticker.
type Sweeper struct {
	Invites    InviteStore
	Sessions   SessionStore
	Resets     ResetStore
	Cache      Evictor
	Window     *ratelimit.SlidingWindow
	LoginGuard *ratelimit.LoginGuard
	Retention  time.Duration
	Logger     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Report counts what one pass removed.
type Report struct {
	InvitesCancelled int64
	SessionsDeleted  int
	ResetsDeleted    int64
	BucketsTrimmed   int
	LoginsTrimmed    int
}

// idleBucket is how long a rate-limit bucket may sit unused before Trim
// discards it. It exceeds the longest rule window.
const idleBucket = time.Hour

// Run performs one pass. Each step runs even when an earlier one failed.
func (s *Sweeper) Run(ctx context.Context) Report {
	var rep Report
	if s.Invites != nil {
		n, err := s.Invites.CancelExpired()
		if err != nil {
			s.Logger.ErrorContext(ctx, "cancel expired invites", "error", err)
		}
		rep.InvitesCancelled = n
	}
	if s.Sessions != nil {
		ids, err := s.Sessions.DeleteExpired()
		if err != nil {
			s.Logger.ErrorContext(ctx, "delete expired sessions", "error", err)
		}
		if s.Cache != nil {
			s.Cache.EvictIDs(ctx, ids)
		}
		rep.SessionsDeleted = len(ids)
	}
	if s.Resets != nil {
		n, err := s.Resets.Sweep(s.Retention)
		if err != nil {
			s.Logger.ErrorContext(ctx, "sweep password resets", "error", err)
		}
		rep.ResetsDeleted = n
	}
	if s.Window != nil {
		rep.BucketsTrimmed = s.Window.Trim(idleBucket)
	}
	if s.LoginGuard != nil {
		rep.LoginsTrimmed = s.LoginGuard.Trim()
	}
	s.Logger.DebugContext(ctx, "housekeeping pass",
		"invites", rep.InvitesCancelled, "sessions", rep.SessionsDeleted,
		"resets", rep.ResetsDeleted, "buckets", rep.BucketsTrimmed, "logins", rep.LoginsTrimmed)
	return rep
}

// Start runs the sweeper every interval until Stop or ctx ends.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Run(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

package router

import (
	"sync"
	"time"

	"github.com/atlasbahamas/atlas/internal/ratelimit"
)

// State is the mutable process-wide state shared by every request.
type State struct {
	Limiter    ratelimit.Limiter
	Window     *ratelimit.SlidingWindow
	LoginGuard *ratelimit.LoginGuard

	mu        sync.Mutex
	lastSweep time.Time
}

// NewState builds the in-memory limiter and login guard. Pass a non-nil
// limiter to count hits elsewhere (Redis); window stays the fallback.
func NewState(limiter ratelimit.Limiter, window *ratelimit.SlidingWindow, loginMax int, loginLock time.Duration) *State {
	if window == nil {
		window = ratelimit.NewSlidingWindow()
	}
	if limiter == nil {
		limiter = window
	}
	return &State{
		Limiter:    limiter,
		Window:     window,
		LoginGuard: ratelimit.NewLoginGuard(loginMax, loginLock),
	}
}

// SweepDue reports whether housekeeping should run now and, if so, marks it
// as run. Concurrent callers see true at most once per interval.
func (s *State) SweepDue(now time.Time, interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lastSweep.IsZero() && now.Sub(s.lastSweep) < interval {
		return false
	}
	s.lastSweep = now
	return true
}

// LastSweep returns when housekeeping last ran.
func (s *State) LastSweep() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSweep
}

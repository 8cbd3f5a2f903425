package ratelimit

import (
	"strings"
	"sync"
	"time"
)

type loginRecord struct {
	failures  int
	firstFail time.Time
	lockUntil time.Time
}

// LoginGuard locks an (IP, username) pair after repeated failed logins.
type LoginGuard struct {
	mu          sync.Mutex
	records     map[string]*loginRecord
	maxAttempts int
	lockFor     time.Duration
	trackFor    time.Duration
	now         func() time.Time
}

// NewLoginGuard locks for lockFor after maxAttempts failures inside the
// tracking window, which is at least 15 minutes.
func NewLoginGuard(maxAttempts int, lockFor time.Duration) *LoginGuard {
	return &LoginGuard{
		records:     make(map[string]*loginRecord),
		maxAttempts: max(maxAttempts, 1),
		lockFor:     lockFor,
		trackFor:    max(lockFor, 15*time.Minute),
		now:         time.Now,
	}
}

func loginKey(ip, username string) string {
	return ip + "|" + strings.ToLower(strings.TrimSpace(username))
}

func ceilSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}

// Check reports whether the pair is locked and for how many seconds.
func (g *LoginGuard) Check(ip, username string) (bool, int) {
	key := loginKey(ip, username)
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[key]
	if !ok {
		return false, 0
	}
	if rec.lockUntil.After(now) {
		return true, max(1, ceilSeconds(rec.lockUntil.Sub(now)))
	}
	if now.Sub(rec.firstFail) > g.trackFor {
		delete(g.records, key)
	}
	return false, 0
}

// Fail records a failed attempt.
func (g *LoginGuard) Fail(ip, username string) {
	key := loginKey(ip, username)
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[key]
	if !ok || now.Sub(rec.firstFail) > g.trackFor {
		rec = &loginRecord{firstFail: now}
		g.records[key] = rec
	}
	rec.failures++
	if rec.failures >= g.maxAttempts {
		rec.lockUntil = now.Add(g.lockFor)
	}
}

// Clear forgets the pair after a successful login.
func (g *LoginGuard) Clear(ip, username string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.records, loginKey(ip, username))
}

// UsernameStatus summarises every tracked IP for username.
type UsernameStatus struct {
	Locked      bool
	WaitSeconds int
	Failures    int
}

func (g *LoginGuard) StatusForUsername(username string) UsernameStatus {
	suffix := "|" + strings.ToLower(strings.TrimSpace(username))
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()
	var st UsernameStatus
	var until time.Time
	for key, rec := range g.records {
		if !strings.HasSuffix(key, suffix) {
			continue
		}
		if g.staleLocked(rec, now) {
			delete(g.records, key)
			continue
		}
		st.Failures += rec.failures
		if rec.lockUntil.After(until) {
			until = rec.lockUntil
		}
	}
	if until.After(now) {
		st.Locked = true
		st.WaitSeconds = max(1, ceilSeconds(until.Sub(now)))
	}
	return st
}

// UnlockUsername removes every record for username and returns how many.
func (g *LoginGuard) UnlockUsername(username string) int {
	uname := strings.ToLower(strings.TrimSpace(username))
	if uname == "" {
		return 0
	}
	suffix := "|" + uname

	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	for key := range g.records {
		if strings.HasSuffix(key, suffix) {
			delete(g.records, key)
			removed++
		}
	}
	return removed
}

// Snapshot counts tracked and locked pairs for the admin dashboard.
type Snapshot struct {
	Tracked  int
	Locked   int
	Failures int
}

func (g *LoginGuard) Snapshot() Snapshot {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()

	var s Snapshot
	for key, rec := range g.records {
		if g.staleLocked(rec, now) {
			delete(g.records, key)
			continue
		}
		s.Tracked++
		s.Failures += rec.failures
		if rec.lockUntil.After(now) {
			s.Locked++
		}
	}
	return s
}

// Trim drops records older than max(tracking window, twice the lock) and
// returns how many were removed.
func (g *LoginGuard) Trim() int {
	horizon := max(g.trackFor, 2*g.lockFor)
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	for key, rec := range g.records {
		if now.Sub(rec.firstFail) > horizon && !rec.lockUntil.After(now) {
			delete(g.records, key)
			removed++
		}
	}
	return removed
}

// staleLocked reports a record past its tracking window with no active lock.
// Callers hold g.mu.
func (g *LoginGuard) staleLocked(rec *loginRecord, now time.Time) bool {
	return now.Sub(rec.firstFail) > g.trackFor && !rec.lockUntil.After(now)
}

package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/atlasbahamas/atlas/internal/logging"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock { return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)} }

func TestSlidingWindowBlocksAtLimit(t *testing.T) {
	c := newClock()
	sw := NewSlidingWindow()
	sw.now = c.now

	for i := range 3 {
		if d := sw.Allow("k", 3, time.Minute); d.Blocked {
			t.Fatalf("hit %d blocked", i)
		}
		c.advance(10 * time.Second)
	}

	d := sw.Allow("k", 3, time.Minute)
	if !d.Blocked {
		t.Fatal("expected 4th hit to be blocked")
	}
	// oldest hit was 30s ago
	if d.RetryAfter != 30 {
		t.Errorf("RetryAfter = %d, want 30", d.RetryAfter)
	}

	if d := sw.Allow("other", 3, time.Minute); d.Blocked {
		t.Error("separate key should not share a bucket")
	}
}

func TestSlidingWindowSlides(t *testing.T) {
	c := newClock()
	sw := NewSlidingWindow()
	sw.now = c.now

	sw.Allow("k", 1, time.Minute)
	c.advance(59 * time.Second)
	d := sw.Allow("k", 1, time.Minute)
	if !d.Blocked || d.RetryAfter != 1 {
		t.Fatalf("got %+v, want blocked with retry 1", d)
	}
	c.advance(time.Second)
	if d := sw.Allow("k", 1, time.Minute); d.Blocked {
		t.Error("hit should pass once the window slid past the oldest entry")
	}
}

func TestSlidingWindowTrim(t *testing.T) {
	c := newClock()
	sw := NewSlidingWindow()
	sw.now = c.now

	sw.Allow("old", 5, time.Minute)
	c.advance(2 * time.Hour)
	sw.Allow("new", 5, time.Minute)

	if n := sw.Trim(time.Hour); n != 1 {
		t.Errorf("Trim removed %d, want 1", n)
	}
	if sw.Len() != 1 {
		t.Errorf("Len = %d, want 1", sw.Len())
	}
}

func TestKeyFor(t *testing.T) {
	tests := []struct {
		path, ip, user, acct string
		want                 string
	}{
		{"/login", "1.2.3.4", " Alice ", "", "login:1.2.3.4:alice"},
		{"/inquiry", "1.2.3.4", "", "A00001", "/inquiry:1.2.3.4"},
		{"/apply", "1.2.3.4", "", "", "/apply:1.2.3.4"},
		{"/manager/tenant/invite", "1.2.3.4", "", "A00001", "/manager/tenant/invite:A00001"},
		{"/manager/tenant/invite", "1.2.3.4", "", "", "/manager/tenant/invite:1.2.3.4"},
	}
	for _, tt := range tests {
		if got := KeyFor(tt.path, tt.ip, tt.user, tt.acct); got != tt.want {
			t.Errorf("KeyFor(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestCheckUnruledPath(t *testing.T) {
	sw := NewSlidingWindow()
	for range 100 {
		if d := Check(sw, "/profile", "1.2.3.4", "", ""); d.Blocked {
			t.Fatal("path without a rule should never block")
		}
	}
	if sw.Len() != 0 {
		t.Error("unruled path should not create buckets")
	}
}

func TestCheckLoginRule(t *testing.T) {
	sw := NewSlidingWindow()
	for i := range 12 {
		if d := Check(sw, "/login", "1.2.3.4", "bob", ""); d.Blocked {
			t.Fatalf("attempt %d blocked", i)
		}
	}
	if d := Check(sw, "/login", "1.2.3.4", "bob", ""); !d.Blocked {
		t.Error("13th login attempt should be blocked")
	}
	if d := Check(sw, "/login", "1.2.3.4", "carol", ""); d.Blocked {
		t.Error("different username should have its own bucket")
	}
}

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	l := NewRedis(client, nil, logging.Discard())
	for i := range 2 {
		if d := l.Allow("k", 2, time.Minute); d.Blocked {
			t.Fatalf("hit %d blocked", i)
		}
	}
	d := l.Allow("k", 2, time.Minute)
	if !d.Blocked {
		t.Fatal("3rd hit should be blocked")
	}
	if d.RetryAfter < 1 || d.RetryAfter > 60 {
		t.Errorf("RetryAfter = %d, want 1..60", d.RetryAfter)
	}
	if !mr.Exists("atlas:rl:k") {
		t.Error("expected prefixed key in redis")
	}

	mr.FastForward(time.Minute + time.Second)
	if d := l.Allow("k", 2, time.Minute); d.Blocked {
		t.Error("window should have expired")
	}
}

func TestRedisLimiterFailsOpenToMemory(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	fallback := NewSlidingWindow()
	l := NewRedis(client, fallback, logging.Discard())
	if d := l.Allow("k", 1, time.Minute); d.Blocked {
		t.Fatal("first hit should pass via fallback")
	}
	if d := l.Allow("k", 1, time.Minute); !d.Blocked {
		t.Error("fallback limiter should enforce the limit")
	}
	if fallback.Len() != 1 {
		t.Errorf("fallback Len = %d, want 1", fallback.Len())
	}
}

func TestLoginGuardLocks(t *testing.T) {
	c := newClock()
	g := NewLoginGuard(3, 10*time.Minute)
	g.now = c.now

	for range 2 {
		g.Fail("1.2.3.4", "Bob")
	}
	if locked, _ := g.Check("1.2.3.4", "bob"); locked {
		t.Fatal("should not lock before max attempts")
	}
	g.Fail("1.2.3.4", "bob")

	locked, wait := g.Check("1.2.3.4", "BOB")
	if !locked || wait != 600 {
		t.Fatalf("Check = %v, %d; want true, 600", locked, wait)
	}
	if locked, _ := g.Check("5.6.7.8", "bob"); locked {
		t.Error("lock should be per IP")
	}

	c.advance(10*time.Minute + time.Second)
	if locked, _ := g.Check("1.2.3.4", "bob"); locked {
		t.Error("lock should expire")
	}
}

func TestLoginGuardWindowResets(t *testing.T) {
	c := newClock()
	g := NewLoginGuard(3, time.Minute)
	g.now = c.now

	g.Fail("ip", "u")
	g.Fail("ip", "u")
	c.advance(16 * time.Minute)
	g.Fail("ip", "u")
	if locked, _ := g.Check("ip", "u"); locked {
		t.Error("failures outside the tracking window should not count")
	}
}

func TestLoginGuardClearAndUnlock(t *testing.T) {
	c := newClock()
	g := NewLoginGuard(1, time.Hour)
	g.now = c.now

	g.Fail("a", "dana")
	g.Fail("b", "dana")
	g.Fail("a", "erin")

	st := g.StatusForUsername("Dana")
	if !st.Locked || st.Failures != 2 || st.WaitSeconds != 3600 {
		t.Errorf("status = %+v", st)
	}

	snap := g.Snapshot()
	if snap.Tracked != 3 || snap.Locked != 3 {
		t.Errorf("snapshot = %+v", snap)
	}

	if n := g.UnlockUsername("dana"); n != 2 {
		t.Errorf("UnlockUsername = %d, want 2", n)
	}
	if st := g.StatusForUsername("dana"); st.Locked {
		t.Error("dana should be unlocked")
	}

	g.Clear("a", "erin")
	if locked, _ := g.Check("a", "erin"); locked {
		t.Error("Clear should drop the lock")
	}
}

func TestLoginGuardTrim(t *testing.T) {
	c := newClock()
	g := NewLoginGuard(5, time.Minute)
	g.now = c.now

	g.Fail("ip", "u")
	c.advance(20 * time.Minute)
	if n := g.Trim(); n != 1 {
		t.Errorf("Trim = %d, want 1", n)
	}
}

// Package ratelimit throttles POST endpoints per identity and tracks failed
// logins.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Decision is the outcome of a limiter check. RetryAfter is whole seconds
// and at least 1 when Blocked.
type Decision struct {
	Blocked    bool
	RetryAfter int
}

type Limiter interface {
	Allow(key string, limit int, window time.Duration) Decision
}

// SlidingWindow keeps per-key request timestamps in memory.
type SlidingWindow struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
	now     func() time.Time
}

func NewSlidingWindow() *SlidingWindow {
	return &SlidingWindow{buckets: make(map[string][]time.Time), now: time.Now}
}

// Allow records a hit unless the key already has limit hits inside window.
func (s *SlidingWindow) Allow(key string, limit int, window time.Duration) Decision {
	limit = max(limit, 1)
	window = max(window, time.Second)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.buckets[key]
	kept := items[:0]
	for _, ts := range items {
		if now.Sub(ts) < window {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit {
		s.buckets[key] = kept
		retry := int(math.Floor((window - now.Sub(kept[0])).Seconds()))
		return Decision{Blocked: true, RetryAfter: max(1, retry)}
	}
	s.buckets[key] = append(kept, now)
	return Decision{}
}

// Trim drops buckets whose newest hit is older than idle and returns how
// many were removed.
func (s *SlidingWindow) Trim(idle time.Duration) int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, items := range s.buckets {
		if len(items) == 0 || now.Sub(items[len(items)-1]) > idle {
			delete(s.buckets, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (s *SlidingWindow) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisLimiter counts hits in a fixed window per key so limits hold across
// processes. Any Redis failure falls back to the in-process limiter.
type RedisLimiter struct {
	Client   redis.Scripter
	Prefix   string
	Fallback *SlidingWindow
	logger   *slog.Logger
}

func NewRedis(client redis.Scripter, fallback *SlidingWindow, logger *slog.Logger) *RedisLimiter {
	if fallback == nil {
		fallback = NewSlidingWindow()
	}
	return &RedisLimiter{Client: client, Prefix: "atlas:rl:", Fallback: fallback, logger: logger}
}

func (l *RedisLimiter) Allow(key string, limit int, window time.Duration) Decision {
	limit = max(limit, 1)
	window = max(window, time.Second)
	if l.Client == nil {
		return l.Fallback.Allow(key, limit, window)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := fixedWindowScript.Run(ctx, l.Client, []string{l.Prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil || len(res) < 2 {
		l.logger.Warn("redis rate limit failed, using memory", "key", key, "error", err)
		return l.Fallback.Allow(key, limit, window)
	}

	count, ttlMs := res[0], res[1]
	if count <= int64(limit) {
		return Decision{}
	}
	if ttlMs < 0 {
		ttlMs = window.Milliseconds()
	}
	return Decision{Blocked: true, RetryAfter: max(1, int(ttlMs/1000))}
}

package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient returns a connected client, or nil when REDIS_ADDR is unset
// or the server does not answer a ping. Callers fall back to in-process state.
func (c *Config) NewRedisClient(logger *slog.Logger) *redis.Client {
	if c.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, using in-memory state", "addr", c.RedisAddr, "error", err)
		client.Close()
		return nil
	}
	return client
}

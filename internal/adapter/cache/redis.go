package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goldnightmare/analysis-api/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Redis is the go-redis backed store.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client) *Redis { return &Redis{client: client} }

// Get returns the value for key if present.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("op=cache.Get: %w", err)
	}
	return v, true, nil
}

// Set stores value under key for ttl.
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("op=cache.Set: %w", err)
	}
	return nil
}

// Delete removes key, reporting whether it was present.
func (r *Redis) Delete(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("op=cache.Delete: %w", err)
	}
	return n > 0, nil
}

// Exists reports whether key is present.
func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("op=cache.Exists: %w", err)
	}
	return n > 0, nil
}

var _ domain.Cache = (*Redis)(nil)

// Connect pings Redis at addr and returns a Redis store on success. When the
// ping fails the service stays up on the in-process store instead of
// refusing to start.
func Connect(ctx context.Context, addr string, sweepInterval time.Duration, log *slog.Logger) domain.Cache {
	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unreachable, using in-process cache", slog.String("addr", addr), slog.Any("error", err))
		_ = client.Close()
		return NewMemory(sweepInterval)
	}
	log.Info("cache connected", slog.String("backend", "redis"), slog.String("addr", addr))
	return NewRedis(client)
}

package admission

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ws_connections:"

// Config bounds the lease counter.
type Config struct {
	MaxPerUser int
	AcquireTTL time.Duration // lease lifetime while a connection is up
	ReleaseTTL time.Duration // lease lifetime after a decrement
}

// DefaultConfig returns the standard admission limits.
func DefaultConfig() Config {
	return Config{
		MaxPerUser: 3,
		AcquireTTL: 2 * time.Hour,
		ReleaseTTL: 5 * time.Minute,
	}
}

// Limiter bounds concurrent connections per user with a TTL-leased
// counter in Redis. The counter self-heals: a lease that is never
// released decays when its TTL expires.
type Limiter struct {
	client *redis.Client
	cfg    Config
}

// NewLimiter creates a limiter backed by the given Redis client.
func NewLimiter(client *redis.Client, cfg Config) *Limiter {
	return &Limiter{client: client, cfg: cfg}
}

func key(userID string) string { return keyPrefix + userID }

// count reads the current lease count, treating a missing key as zero.
func (l *Limiter) count(ctx context.Context, userID string) (int, error) {
	val, err := l.client.Get(ctx, key(userID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("corrupt lease counter for %s: %w", userID, err)
	}
	return n, nil
}

// Check reports whether the user is below the connection limit.
// Read-only; on a storage error the caller must fail closed.
func (l *Limiter) Check(ctx context.Context, userID string) (bool, error) {
	n, err := l.count(ctx, userID)
	if err != nil {
		return false, err
	}
	return n < l.cfg.MaxPerUser, nil
}

// Acquire takes one lease slot and resets the key to the full
// connection TTL. The read-then-write is unfenced; the limit is
// best-effort under concurrent connects.
func (l *Limiter) Acquire(ctx context.Context, userID string) error {
	n, err := l.count(ctx, userID)
	if err != nil {
		return err
	}
	return l.client.Set(ctx, key(userID), n+1, l.cfg.AcquireTTL).Err()
}

// Release returns one lease slot. A positive counter is decremented
// and kept on the short release TTL, even when the result is zero; a
// missing or already-zero counter is deleted outright.
func (l *Limiter) Release(ctx context.Context, userID string) error {
	n, err := l.count(ctx, userID)
	if err != nil {
		return err
	}
	if n > 0 {
		return l.client.Set(ctx, key(userID), n-1, l.cfg.ReleaseTTL).Err()
	}
	return l.client.Del(ctx, key(userID)).Err()
}

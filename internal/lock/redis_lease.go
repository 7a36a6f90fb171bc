// Package lock holds the cross-process lease that keeps a single campaign
// running across every dispatcher instance sharing a Redis server.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another holder owns the lease
var ErrHeld = errors.New("lease held by another dispatcher")

// ErrLost is returned when the lease expired or was taken over
var ErrLost = errors.New("lease lost")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// RedisLease is a single-holder lease stored under one Redis key.
// The value is "<campaignID>:<token>" so operators can see who holds it.
type RedisLease struct {
	client *redis.Client
	key    string
	ttl    time.Duration

	mu    sync.Mutex
	value string
}

// NewRedisLease creates a lease on key that expires after ttl unless refreshed
func NewRedisLease(client *redis.Client, key string, ttl time.Duration) *RedisLease {
	return &RedisLease{client: client, key: key, ttl: ttl}
}

// Acquire takes the lease for campaignID
func (l *RedisLease) Acquire(ctx context.Context, campaignID int64) error {
	value := strconv.FormatInt(campaignID, 10) + ":" + uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, value, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire lease: %w", err)
	}
	if !ok {
		return ErrHeld
	}

	l.mu.Lock()
	l.value = value
	l.mu.Unlock()

	return nil
}

// Refresh extends the lease by its ttl
func (l *RedisLease) Refresh(ctx context.Context) error {
	l.mu.Lock()
	value := l.value
	l.mu.Unlock()

	if value == "" {
		return ErrLost
	}

	n, err := refreshScript.Run(ctx, l.client, []string{l.key}, value, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to refresh lease: %w", err)
	}
	if n == 0 {
		return ErrLost
	}

	return nil
}

// Release gives the lease up if this holder still owns it
func (l *RedisLease) Release(ctx context.Context) error {
	l.mu.Lock()
	value := l.value
	l.value = ""
	l.mu.Unlock()

	if value == "" {
		return nil
	}

	if err := releaseScript.Run(ctx, l.client, []string{l.key}, value).Err(); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}

	return nil
}

// Holder returns the campaign ID stored in the lease, or 0 when it is free
func (l *RedisLease) Holder(ctx context.Context) (int64, error) {
	value, err := l.client.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read lease: %w", err)
	}

	id, _, _ := strings.Cut(value, ":")
	campaignID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed lease value %q: %w", value, err)
	}

	return campaignID, nil
}

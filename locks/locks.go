// Package locks provides the optional advisory lock taken while
// filling a cache entry, so concurrent processes sharing a cache
// don't synthesize the same line twice. Without Redis configured the
// no-op lock is used and redundant fills are simply tolerated; cache
// writes are content-addressed and atomic, so that is safe.
package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock acquires an advisory hold on a cache key. The returned release
// function must be called once the cache entry is written (or the
// fill abandoned).
type Lock interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Noop grants every acquisition immediately.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

const (
	lockPrefix   = "dubbot:lock:"
	lockTTL      = 2 * time.Minute
	pollInterval = 100 * time.Millisecond
)

// Redis implements Lock with SET NX and a TTL, so a crashed holder
// never wedges other processes for more than the TTL.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to Redis and verifies connectivity with a ping.
func NewRedis(addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &Redis{client: client}, nil
}

// Acquire polls until the key's lock is granted or ctx is done.
func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := lockPrefix + key
	for {
		ok, err := r.client.SetNX(ctx, redisKey, 1, lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("lock acquire failed for %s: %w", key, err)
		}
		if ok {
			release := func() {
				rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				r.client.Del(rctx, redisKey)
			}
			return release, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

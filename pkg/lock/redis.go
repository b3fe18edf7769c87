package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when it still holds our token.
// KEYS[1] = lock key
// ARGV[1] = owner token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only when it still holds our token.
// KEYS[1] = lock key
// ARGV[1] = owner token
// ARGV[2] = lease in milliseconds
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a lease lock shared by every daemon pointed at one Redis.
// While a lock is held its lease is renewed every ttl/3, so a slow
// execution keeps it; a holder that stops renewing (crash, partition) loses
// it after ttl.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	poll   time.Duration
}

// minLease keeps the renewal interval well above a Redis round trip.
const minLease = 150 * time.Millisecond

func NewRedisLocker(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisLocker {
	if prefix == "" {
		prefix = "stellar-pay:lock:"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if ttl < minLease {
		ttl = minLease
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl, poll: 25 * time.Millisecond}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	full := l.prefix + key

	for {
		ok, err := l.client.SetNX(ctx, full, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(key, full, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// release on a fresh context so a cancelled request still frees the lock
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.client, []string{full}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				slog.Warn("redis unlock failed", "key", key, "error", err)
			}
		})
	}, nil
}

// renew extends the lease until stop is closed. It gives up once the token
// no longer owns the key.
func (l *RedisLocker) renew(key, full, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		rctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
		n, err := renewScript.Run(rctx, l.client, []string{full}, token, l.ttl.Milliseconds()).Int64()
		cancel()
		switch {
		case err != nil:
			slog.Warn("redis lock renewal failed", "key", key, "error", err)
		case n == 0:
			slog.Error("redis lock lost", "key", key)
			return
		}
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v2"
	"github.com/redis/go-redis/v9"
)

// ErrReplayed is returned when a signed request has already been accepted.
var ErrReplayed = errors.New("signed request already used")

// DefaultReplayTTL is how long a signed request stays claimed.
const DefaultReplayTTL = 24 * time.Hour

// ReplayGuard remembers signed requests so each is accepted once within its
// TTL.
type ReplayGuard interface {
	// Claim records key and reports whether it was unseen.
	Claim(ctx context.Context, key string) (bool, error)
}

// ReplayKey identifies a signed request by its canonical payload and
// signature. Ed25519 signatures are deterministic and strictly encoded, so a
// valid request has exactly one key.
func ReplayKey(p Proof) string {
	h := sha256.New()
	h.Write(p.Payload)
	h.Write([]byte{0})
	h.Write(p.Signature)
	return hex.EncodeToString(h.Sum(nil))
}

// MemoryReplayGuard keeps claims in process memory. Expired claims are swept
// every sweepEvery claims.
type MemoryReplayGuard struct {
	ttl    time.Duration
	now    func() time.Time
	seen   *xsync.MapOf[string, time.Time]
	claims atomic.Uint64
}

const sweepEvery = 1024

func NewMemoryReplayGuard(ttl time.Duration) *MemoryReplayGuard {
	if ttl <= 0 {
		ttl = DefaultReplayTTL
	}
	return &MemoryReplayGuard{
		ttl:  ttl,
		now:  time.Now,
		seen: xsync.NewMapOf[time.Time](),
	}
}

func (g *MemoryReplayGuard) Claim(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	now := g.now()
	fresh := false
	g.seen.Compute(key, func(expires time.Time, loaded bool) (time.Time, bool) {
		if loaded && now.Before(expires) {
			return expires, false
		}
		fresh = true
		return now.Add(g.ttl), false
	})

	if g.claims.Add(1)%sweepEvery == 0 {
		g.sweep(now)
	}
	return fresh, nil
}

func (g *MemoryReplayGuard) sweep(now time.Time) {
	g.seen.Range(func(key string, expires time.Time) bool {
		if !now.Before(expires) {
			g.seen.Delete(key)
		}
		return true
	})
}

// RedisReplayGuard shares claims between daemons through SET NX with a TTL.
type RedisReplayGuard struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisReplayGuard(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisReplayGuard {
	if prefix == "" {
		prefix = "stellar-pay:replay:"
	}
	if ttl <= 0 {
		ttl = DefaultReplayTTL
	}
	return &RedisReplayGuard{client: client, prefix: prefix, ttl: ttl}
}

func (g *RedisReplayGuard) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.prefix+key, 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis replay claim: %w", err)
	}
	return ok, nil
}

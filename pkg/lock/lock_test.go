package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseMutualExclusion(t *testing.T, l Locker) {
	t.Helper()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "proposal/1")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestLocalLocker_MutualExclusion(t *testing.T) {
	exerciseMutualExclusion(t, NewLocalLocker())
}

func TestLocalLocker_IndependentKeys(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	u1, err := l.Lock(ctx, "a")
	require.NoError(t, err)
	u2, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	u1()
	u2()
}

func TestLocalLocker_ContextCancel(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "a")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // double release is harmless
	u, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	u()
}

// TestRedisLocker_Integration requires a running Redis and is skipped otherwise.
func TestRedisLocker_Integration(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer func() { _ = client.Close() }()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	prefix := "stellar-pay:test:" + time.Now().Format("150405.000000") + ":"
	exerciseMutualExclusion(t, NewRedisLocker(client, prefix, 5*time.Second))
}

// TestRedisLocker_LeaseOutlivesTTL holds a short-lease lock for several TTLs
// and checks that no other caller can take it meanwhile.
func TestRedisLocker_LeaseOutlivesTTL(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer func() { _ = client.Close() }()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	const ttl = 300 * time.Millisecond
	prefix := "stellar-pay:test:" + time.Now().Format("150405.000000") + ":"
	l := NewRedisLocker(client, prefix, ttl)

	unlock, err := l.Lock(context.Background(), "proposal/1")
	require.NoError(t, err)
	time.Sleep(3 * ttl)

	ctx, cancel := context.WithTimeout(context.Background(), ttl)
	defer cancel()
	_, err = l.Lock(ctx, "proposal/1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	remaining, err := client.PTTL(context.Background(), prefix+"proposal/1").Result()
	require.NoError(t, err)
	assert.Greater(t, remaining, time.Duration(0))

	unlock()
	unlock()
	u, err := l.Lock(context.Background(), "proposal/1")
	require.NoError(t, err)
	u()
}

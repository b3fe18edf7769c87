// Package lock serializes mutations per proposal.
package lock

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v2"
)

// Locker hands out exclusive locks by key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// LocalLocker is a per-key mutex table for a single process.
// Keys are never evicted; the table grows with the number of proposals touched.
type LocalLocker struct {
	locks *xsync.MapOf[string, chan struct{}]
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: xsync.NewMapOf[chan struct{}]()}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	ch, _ := l.locks.LoadOrCompute(key, func() chan struct{} {
		return make(chan struct{}, 1)
	})
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() { once.Do(func() { <-ch }) }, nil
}

package treasury

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/yashannadate/stellar-pay/pkg/contracts"
	"github.com/yashannadate/stellar-pay/pkg/lock"
	"github.com/yashannadate/stellar-pay/pkg/store"
)

const registryLockKey = "registry"

// registry allocates dense proposal ids starting at 1. Allocation and the
// write of the new proposal happen under one lock and commit in one
// store call, so a failed create never consumes an id.
type registry struct {
	mu     sync.Mutex
	store  store.Store
	locker lock.Locker
}

func (r *registry) count(ctx context.Context) (uint32, error) {
	return r.store.Count(ctx)
}

// create builds the proposal for the next id and commits it.
func (r *registry) create(ctx context.Context, build func(id uint32) *contracts.Proposal) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// serializes creators across daemons sharing one store
	unlock, err := r.locker.Lock(ctx, registryLockKey)
	if err != nil {
		return 0, fmt.Errorf("lock registry: %w", err)
	}
	defer unlock()

	n, err := r.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("read proposal count: %w", err)
	}
	if n == math.MaxUint32 {
		return 0, errors.New("proposal id space exhausted")
	}

	id := n + 1
	if err := r.store.Create(ctx, build(id)); err != nil {
		return 0, fmt.Errorf("store proposal %d: %w", id, err)
	}
	return id, nil
}

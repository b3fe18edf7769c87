// Package store persists proposals and the proposal counter.
//
// Every backend offers single-record atomicity plus one compound operation,
// Create, which commits a new proposal together with the counter so that the
// counter and the set of stored ids can never drift apart.
package store

import (
	"context"
	"errors"

	"github.com/yashannadate/stellar-pay/pkg/contracts"
)

var (
	// ErrNotFound is returned when no proposal has the requested id.
	ErrNotFound = errors.New("proposal not found")
	// ErrConflict is returned by Create when the id is not the next in sequence.
	ErrConflict = errors.New("proposal id conflict")
)

// Store is the durable proposal record store.
type Store interface {
	// Count returns the proposal counter, 0 when nothing was ever created.
	Count(ctx context.Context) (uint32, error)
	// Create stores p and advances the counter to p.ID in one atomic step.
	// p.ID must equal Count()+1, otherwise ErrConflict.
	Create(ctx context.Context, p *contracts.Proposal) error
	// Get returns a copy of the proposal or ErrNotFound.
	Get(ctx context.Context, id uint32) (*contracts.Proposal, error)
	// Put overwrites an existing proposal or returns ErrNotFound.
	Put(ctx context.Context, p *contracts.Proposal) error
	// List returns every proposal ordered by id.
	List(ctx context.Context) ([]*contracts.Proposal, error)
	// Close releases backend resources.
	Close() error
}

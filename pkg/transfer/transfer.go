// Package transfer moves funds between accounts on behalf of the treasury.
//
// Every transfer carries an idempotency key. Backends apply a key at most once,
// which makes resuming an interrupted disbursement safe.
package transfer

import (
	"context"
	"errors"

	"github.com/yashannadate/stellar-pay/pkg/contracts"
)

var (
	// ErrInsufficientFunds means the source account cannot cover the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidTransfer rejects malformed requests (blank parties, non-positive amount).
	ErrInvalidTransfer = errors.New("invalid transfer")
	// ErrKeyReused means an idempotency key was replayed with different parameters.
	ErrKeyReused = errors.New("idempotency key reused with different transfer")
	// ErrBalanceUnsupported is returned by wrappers whose backend cannot report balances.
	ErrBalanceUnsupported = errors.New("balance not supported by backend")
)

// Transfer is one movement of Amount units of Asset from From to To.
type Transfer struct {
	From   contracts.Identity `json:"from"`
	To     contracts.Identity `json:"to"`
	Asset  contracts.Asset    `json:"asset"`
	Amount int64              `json:"amount"`
	Key    string             `json:"idempotency_key"`
}

// Validate checks the request shape.
func (t Transfer) Validate() error {
	if t.From == "" || t.To == "" || t.Asset == "" || t.Key == "" || t.Amount <= 0 {
		return ErrInvalidTransfer
	}
	return nil
}

// Transferer applies transfers.
type Transferer interface {
	Transfer(ctx context.Context, t Transfer) error
}

// BalanceReader is implemented by backends that can report balances.
type BalanceReader interface {
	Balance(ctx context.Context, account contracts.Identity, asset contracts.Asset) (int64, error)
}

// Func adapts a function to Transferer.
type Func func(ctx context.Context, t Transfer) error

func (f Func) Transfer(ctx context.Context, t Transfer) error { return f(ctx, t) }

// IsPermanent reports whether retrying err cannot succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidTransfer) ||
		errors.Is(err, ErrKeyReused) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

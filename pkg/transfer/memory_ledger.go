package transfer

import (
	"context"
	"fmt"
	"sync"

	"github.com/yashannadate/stellar-pay/pkg/contracts"
)

type balanceKey struct {
	account contracts.Identity
	asset   contracts.Asset
}

// MemoryLedger is an in-process ledger of balances.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[balanceKey]int64
	applied  map[string]Transfer
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[balanceKey]int64),
		applied:  make(map[string]Transfer),
	}
}

// Credit mints amount into account, used to fund the custodian.
func (l *MemoryLedger) Credit(ctx context.Context, account contracts.Identity, asset contracts.Asset, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: credit must be positive", ErrInvalidTransfer)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[balanceKey{account, asset}] += amount
	return nil
}

func (l *MemoryLedger) Transfer(ctx context.Context, t Transfer) error {
	if err := t.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if prev, ok := l.applied[t.Key]; ok {
		if prev != t {
			return ErrKeyReused
		}
		return nil
	}

	from := balanceKey{t.From, t.Asset}
	if l.balances[from] < t.Amount {
		return fmt.Errorf("%w: %s holds %d %s, needs %d", ErrInsufficientFunds, t.From, l.balances[from], t.Asset, t.Amount)
	}
	l.balances[from] -= t.Amount
	l.balances[balanceKey{t.To, t.Asset}] += t.Amount
	l.applied[t.Key] = t
	return nil
}

func (l *MemoryLedger) Balance(ctx context.Context, account contracts.Identity, asset contracts.Asset) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[balanceKey{account, asset}], nil
}

// Applied returns the number of distinct transfers applied.
func (l *MemoryLedger) Applied() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.applied)
}

package transfer

import (
	"context"
	"log/slog"
	"time"

	"github.com/avast/retry-go"

	"github.com/yashannadate/stellar-pay/pkg/contracts"
)

// Retrying retries transient failures of the wrapped Transferer.
// Replays are safe because the idempotency key is passed through unchanged.
type Retrying struct {
	next     Transferer
	attempts uint
	delay    time.Duration
	logger   *slog.Logger
}

// NewRetrying wraps next. attempts of 0 means 3.
func NewRetrying(next Transferer, attempts uint, delay time.Duration) *Retrying {
	if attempts == 0 {
		attempts = 3
	}
	return &Retrying{next: next, attempts: attempts, delay: delay, logger: slog.Default().With("component", "transfer")}
}

func (r *Retrying) Transfer(ctx context.Context, t Transfer) error {
	return retry.Do(
		func() error { return r.next.Transfer(ctx, t) },
		retry.Context(ctx),
		retry.Attempts(r.attempts),
		retry.Delay(r.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return !IsPermanent(err) }),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Warn("transfer retry", "key", t.Key, "attempt", n+1, "error", err)
		}),
	)
}

// Balance delegates when the wrapped backend can report balances.
func (r *Retrying) Balance(ctx context.Context, account contracts.Identity, asset contracts.Asset) (int64, error) {
	br, ok := r.next.(BalanceReader)
	if !ok {
		return 0, ErrBalanceUnsupported
	}
	return br.Balance(ctx, account, asset)
}

package transfer

import (
	"context"
	"errors"
	"regexp"
	"sync/atomic"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func xfer(key string, amount int64) Transfer {
	return Transfer{From: "treasury", To: "alice", Asset: "USDC", Amount: amount, Key: key}
}

func TestMemoryLedger_Transfer(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	require.NoError(t, l.Credit(ctx, "treasury", "USDC", 500))

	require.NoError(t, l.Transfer(ctx, xfer("k1", 200)))

	bal, _ := l.Balance(ctx, "treasury", "USDC")
	assert.Equal(t, int64(300), bal)
	bal, _ = l.Balance(ctx, "alice", "USDC")
	assert.Equal(t, int64(200), bal)

	// other assets are separate balances
	bal, _ = l.Balance(ctx, "treasury", "XLM")
	assert.Zero(t, bal)
}

func TestMemoryLedger_Idempotent(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	require.NoError(t, l.Credit(ctx, "treasury", "USDC", 500))

	require.NoError(t, l.Transfer(ctx, xfer("k1", 200)))
	require.NoError(t, l.Transfer(ctx, xfer("k1", 200)))
	assert.Equal(t, 1, l.Applied())

	bal, _ := l.Balance(ctx, "alice", "USDC")
	assert.Equal(t, int64(200), bal)

	require.ErrorIs(t, l.Transfer(ctx, xfer("k1", 201)), ErrKeyReused)
}

func TestMemoryLedger_Rejections(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	require.NoError(t, l.Credit(ctx, "treasury", "USDC", 100))

	require.ErrorIs(t, l.Transfer(ctx, xfer("k1", 101)), ErrInsufficientFunds)
	require.ErrorIs(t, l.Transfer(ctx, xfer("k2", 0)), ErrInvalidTransfer)
	require.ErrorIs(t, l.Transfer(ctx, Transfer{From: "treasury", Asset: "USDC", Amount: 1, Key: "k3"}), ErrInvalidTransfer)
	require.ErrorIs(t, l.Credit(ctx, "treasury", "USDC", -5), ErrInvalidTransfer)
	assert.Zero(t, l.Applied())
}

func TestRetrying_RetriesTransientErrors(t *testing.T) {
	var calls int32
	flaky := Func(func(ctx context.Context, tr Transfer) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("connection reset")
		}
		return nil
	})

	r := NewRetrying(flaky, 5, 0)
	require.NoError(t, r.Transfer(context.Background(), xfer("k1", 10)))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRetrying_StopsOnPermanentErrors(t *testing.T) {
	var calls int32
	broke := Func(func(ctx context.Context, tr Transfer) error {
		atomic.AddInt32(&calls, 1)
		return ErrInsufficientFunds
	})

	r := NewRetrying(broke, 5, 0)
	err := r.Transfer(context.Background(), xfer("k1", 10))
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRetrying_Balance(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	require.NoError(t, l.Credit(ctx, "treasury", "USDC", 42))

	bal, err := NewRetrying(l, 0, 0).Balance(ctx, "treasury", "USDC")
	require.NoError(t, err)
	assert.Equal(t, int64(42), bal)

	_, err = NewRetrying(Func(func(context.Context, Transfer) error { return nil }), 0, 0).Balance(ctx, "treasury", "USDC")
	require.ErrorIs(t, err, ErrBalanceUnsupported)
}

func TestPostgresLedger_Transfer(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	l := NewPostgresLedger(db)
	tr := xfer("k1", 200)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO ledger_transfers`).
		WithArgs("k1", "treasury", "alice", "USDC", int64(200)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT amount FROM ledger_balances WHERE account = $1 AND asset = $2 FOR UPDATE`)).
		WithArgs("treasury", "USDC").
		WillReturnRows(sqlmock.NewRows([]string{"amount"}).AddRow(500))
	mock.ExpectExec(`UPDATE ledger_balances SET amount = amount - \$1`).
		WithArgs(int64(200), "treasury", "USDC").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO ledger_balances`).
		WithArgs("alice", "USDC", int64(200)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, l.Transfer(context.Background(), tr))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_ReplayedKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	l := NewPostgresLedger(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO ledger_transfers`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT from_account, to_account, asset, amount FROM ledger_transfers`).
		WithArgs("k1").
		WillReturnRows(sqlmock.NewRows([]string{"from_account", "to_account", "asset", "amount"}).
			AddRow("treasury", "alice", "USDC", 200))
	mock.ExpectRollback()

	require.NoError(t, l.Transfer(context.Background(), xfer("k1", 200)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_InsufficientFunds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	l := NewPostgresLedger(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO ledger_transfers`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT amount FROM ledger_balances`).
		WithArgs("treasury", "USDC").
		WillReturnRows(sqlmock.NewRows([]string{"amount"}).AddRow(50))
	mock.ExpectRollback()

	err = l.Transfer(context.Background(), xfer("k1", 200))
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.NoError(t, mock.ExpectationsWereMet())
}

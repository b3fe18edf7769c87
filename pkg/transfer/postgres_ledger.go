package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/yashannadate/stellar-pay/pkg/contracts"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS ledger_balances (
	account TEXT NOT NULL,
	asset TEXT NOT NULL,
	amount BIGINT NOT NULL CHECK (amount >= 0),
	PRIMARY KEY (account, asset)
);
CREATE TABLE IF NOT EXISTS ledger_transfers (
	idempotency_key TEXT PRIMARY KEY,
	from_account TEXT NOT NULL,
	to_account TEXT NOT NULL,
	asset TEXT NOT NULL,
	amount BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// PostgresLedger keeps balances in PostgreSQL.
// The source balance row is locked with SELECT FOR UPDATE for the debit, and the
// idempotency key is claimed in the same transaction.
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Init(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, ledgerSchema)
	return err
}

func (l *PostgresLedger) Transfer(ctx context.Context, t Transfer) error {
	if err := t.Validate(); err != nil {
		return err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_transfers (idempotency_key, from_account, to_account, asset, amount)
		 VALUES ($1, $2, $3, $4, $5) ON CONFLICT (idempotency_key) DO NOTHING`,
		t.Key, string(t.From), string(t.To), string(t.Asset), t.Amount,
	)
	if err != nil {
		return fmt.Errorf("claim idempotency key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// already applied; confirm it was the same transfer
		var from, to, asset string
		var amount int64
		err := tx.QueryRowContext(ctx,
			`SELECT from_account, to_account, asset, amount FROM ledger_transfers WHERE idempotency_key = $1`,
			t.Key,
		).Scan(&from, &to, &asset, &amount)
		if err != nil {
			return fmt.Errorf("read applied transfer: %w", err)
		}
		if from != string(t.From) || to != string(t.To) || asset != string(t.Asset) || amount != t.Amount {
			return ErrKeyReused
		}
		return nil
	}

	var balance int64
	err = tx.QueryRowContext(ctx,
		`SELECT amount FROM ledger_balances WHERE account = $1 AND asset = $2 FOR UPDATE`,
		string(t.From), string(t.Asset),
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s holds no %s", ErrInsufficientFunds, t.From, t.Asset)
	}
	if err != nil {
		return fmt.Errorf("balance lock failed: %w", err)
	}
	if balance < t.Amount {
		return fmt.Errorf("%w: %s holds %d %s, needs %d", ErrInsufficientFunds, t.From, balance, t.Asset, t.Amount)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE ledger_balances SET amount = amount - $1 WHERE account = $2 AND asset = $3`,
		t.Amount, string(t.From), string(t.Asset),
	); err != nil {
		return fmt.Errorf("debit failed: %w", err)
	}
	if err := credit(ctx, tx, t.To, t.Asset, t.Amount); err != nil {
		return err
	}
	return tx.Commit()
}

// Credit mints amount into account.
func (l *PostgresLedger) Credit(ctx context.Context, account contracts.Identity, asset contracts.Asset, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: credit must be positive", ErrInvalidTransfer)
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := credit(ctx, tx, account, asset, amount); err != nil {
		return err
	}
	return tx.Commit()
}

func (l *PostgresLedger) Balance(ctx context.Context, account contracts.Identity, asset contracts.Asset) (int64, error) {
	var balance int64
	err := l.db.QueryRowContext(ctx,
		`SELECT amount FROM ledger_balances WHERE account = $1 AND asset = $2`,
		string(account), string(asset),
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("balance read failed: %w", err)
	}
	return balance, nil
}

func credit(ctx context.Context, tx *sql.Tx, account contracts.Identity, asset contracts.Asset, amount int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_balances (account, asset, amount) VALUES ($1, $2, $3)
		 ON CONFLICT (account, asset) DO UPDATE SET amount = ledger_balances.amount + EXCLUDED.amount`,
		string(account), string(asset), amount,
	)
	if err != nil {
		return fmt.Errorf("credit failed: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/yashannadate/stellar-pay/pkg/contracts"
)

const counterName = "proposal_count"

// dialect captures the differences between the SQL backends.
type dialect struct {
	name string
	// numbered placeholders ($1, $2) instead of ?.
	numbered bool
	// lockSuffix is appended to the counter read inside Create.
	lockSuffix string
	schema     string
}

// SQLStore implements Store over database/sql. Each proposal is one row holding
// its JSON record; the counter lives in its own row of the counters table.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

func (s *SQLStore) q(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Init creates the tables when missing.
func (s *SQLStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema); err != nil {
		return fmt.Errorf("%s: migrate: %w", s.dialect.name, err)
	}
	return nil
}

func (s *SQLStore) Count(ctx context.Context) (uint32, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, s.q(`SELECT value FROM counters WHERE name = ?`), counterName).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s: count: %w", s.dialect.name, err)
	}
	return uint32(n), nil
}

func (s *SQLStore) Create(ctx context.Context, p *contracts.Proposal) error {
	record, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode proposal: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", s.dialect.name, err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	err = tx.QueryRowContext(ctx, s.q(`SELECT value FROM counters WHERE name = ?`+s.dialect.lockSuffix), counterName).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: read counter: %w", s.dialect.name, err)
	}
	if int64(p.ID) != current+1 {
		return ErrConflict
	}

	if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO proposals (id, executed, record) VALUES (?, ?, ?)`),
		int64(p.ID), p.Executed, string(record)); err != nil {
		return fmt.Errorf("%s: insert proposal: %w", s.dialect.name, err)
	}
	if _, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO counters (name, value) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value`),
		counterName, int64(p.ID)); err != nil {
		return fmt.Errorf("%s: advance counter: %w", s.dialect.name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", s.dialect.name, err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id uint32) (*contracts.Proposal, error) {
	var record string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT record FROM proposals WHERE id = ?`), int64(id)).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: get: %w", s.dialect.name, err)
	}
	return decodeProposal(record)
}

func (s *SQLStore) Put(ctx context.Context, p *contracts.Proposal) error {
	record, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode proposal: %w", err)
	}
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE proposals SET executed = ?, record = ? WHERE id = ?`),
		p.Executed, string(record), int64(p.ID))
	if err != nil {
		return fmt.Errorf("%s: put: %w", s.dialect.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]*contracts.Proposal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM proposals ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%s: list: %w", s.dialect.name, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.Proposal
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		p, err := decodeProposal(record)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error { return s.db.Close() }

func decodeProposal(record string) (*contracts.Proposal, error) {
	var p contracts.Proposal
	if err := json.Unmarshal([]byte(record), &p); err != nil {
		return nil, fmt.Errorf("decode proposal: %w", err)
	}
	return &p, nil
}

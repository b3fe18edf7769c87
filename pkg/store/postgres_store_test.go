package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewPostgresStore(db)
	p := newProposal(4)
	record, err := json.Marshal(p)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM counters WHERE name = $1 FOR UPDATE`)).
		WithArgs(counterName).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO proposals (id, executed, record) VALUES ($1, $2, $3)`)).
		WithArgs(int64(4), false, string(record)).
		WillReturnResult(sqlmock.NewResult(4, 1))
	mock.ExpectExec(`INSERT INTO counters`).
		WithArgs(counterName, int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Create(context.Background(), p))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateConflictRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewPostgresStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT value FROM counters`).
		WithArgs(counterName).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(7))
	mock.ExpectRollback()

	err = s.Create(context.Background(), newProposal(4))
	require.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FirstCreateWithoutCounterRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewPostgresStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT value FROM counters`).
		WithArgs(counterName).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO proposals`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO counters`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Create(context.Background(), newProposal(1)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAndCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewPostgresStore(db)
	record, err := json.Marshal(newProposal(2))
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT record FROM proposals WHERE id = $1`)).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"record"}).AddRow(string(record)))
	mock.ExpectQuery(`SELECT record FROM proposals`).
		WithArgs(int64(3)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT value FROM counters`).
		WithArgs(counterName).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(2))

	got, err := s.Get(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), got.ID)
	total, err := got.Total()
	require.NoError(t, err)
	assert.Equal(t, int64(350), total)

	_, err = s.Get(context.Background(), 3)
	require.ErrorIs(t, err, ErrNotFound)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewPostgresStore(db)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE proposals SET executed = $1, record = $2 WHERE id = $3`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.ErrorIs(t, s.Put(context.Background(), newProposal(5)), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

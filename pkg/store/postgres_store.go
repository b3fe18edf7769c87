package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS proposals (
	id BIGINT PRIMARY KEY,
	executed BOOLEAN NOT NULL DEFAULT FALSE,
	record JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS counters (
	name TEXT PRIMARY KEY,
	value BIGINT NOT NULL
);`

// NewPostgresStore wraps an open Postgres handle. Call Init to migrate.
// The counter row is read FOR UPDATE inside Create, so concurrent daemons
// sharing one database still allocate ids without gaps or reuse.
func NewPostgresStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, dialect: dialect{
		name:       "postgres",
		numbered:   true,
		lockSuffix: " FOR UPDATE",
		schema:     postgresSchema,
	}}
}

// OpenPostgres connects using a lib/pq DSN and migrates.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := NewPostgresStore(db)
	if err := s.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

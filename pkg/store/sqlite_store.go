package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS proposals (
	id INTEGER PRIMARY KEY,
	executed BOOLEAN NOT NULL DEFAULT 0,
	record TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS counters (
	name TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);`

// NewSQLiteStore wraps an open SQLite handle and migrates it.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	// SQLite serializes writers; one connection avoids SQLITE_BUSY inside Create.
	db.SetMaxOpenConns(1)
	s := &SQLStore{db: db, dialect: dialect{name: "sqlite", schema: sqliteSchema}}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	s, err := NewSQLiteStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

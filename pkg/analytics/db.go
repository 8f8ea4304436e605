// Package analytics wraps the embedded analytical SQL engine holding the raw
// dataset being catalogued.
package analytics

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB is the analytical-engine connection consumed by the extraction pipeline.
type DB interface {
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row
	Close() error
}

// SQLiteDB is the embedded SQLite implementation of DB.
type SQLiteDB struct {
	db *sql.DB
}

var _ DB = (*SQLiteDB)(nil)

// Open opens the dataset file with the embedded engine.
func Open(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open analytics database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping analytics database: %w", err)
	}
	return &SQLiteDB{db: db}, nil
}

// Query implements DB.
func (s *SQLiteDB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// QueryRow implements DB.
func (s *SQLiteDB) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

// Close implements DB.
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

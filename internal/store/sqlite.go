package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when no record exists under a key
var ErrNotFound = errors.New("record not found")

// SQLite is a durable key/value store backed by a single table
type SQLite struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath
func New(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM records WHERE key = ?",
		key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return value, nil
}

// Put replaces the value stored under key in a single statement
func (s *SQLite) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now())
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

// Keys lists every stored key
func (s *SQLite) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM records ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a durable Store backed by a single-table SQLite database.
// The pure-Go driver keeps deployment cgo-free.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and
// prepares the kv table. Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Serialized writes through one connection; sqlite locks per-file.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			path  TEXT PRIMARY KEY,
			value BLOB NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Write(ctx context.Context, key []string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (path, value) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET value = excluded.value`,
		JoinKey(key), raw)
	return err
}

func (s *SQLiteStore) Read(ctx context.Context, key []string) (json.RawMessage, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE path = ?`, JoinKey(key)).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (s *SQLiteStore) ReadInto(ctx context.Context, key []string, out any) error {
	return readInto(ctx, s, key, out)
}

func (s *SQLiteStore) Update(ctx context.Context, key []string, fn func(map[string]any)) (map[string]any, error) {
	return update(ctx, s, key, fn)
}

func (s *SQLiteStore) Remove(ctx context.Context, key []string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE path = ?`, JoinKey(key))
	return err
}

func (s *SQLiteStore) List(ctx context.Context, prefix []string) ([][]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM kv WHERE path LIKE ? ORDER BY path`, JoinKey(prefix)+"/%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys [][]string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		keys = append(keys, SplitKey(path))
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv`)
	return err
}

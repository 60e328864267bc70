package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the pure-Go "sqlite" database/sql driver.
	_ "github.com/glebarez/go-sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS instances (
	id         TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore keeps payloads in a single SQLite database file, the analogue
// of hosts that embed instance metadata inside the scene file itself.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLiteStore opens (creating if needed) the database at path.
// Use ":memory:" for a private in-memory database.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create instances table: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database path.
func (s *SQLiteStore) Path() string { return s.path }

// Read returns the payload for id.
func (s *SQLiteStore) Read(ctx context.Context, id string) (map[string]any, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM instances WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read instance: %w", err)
	}
	return decode(id, []byte(raw))
}

// Write upserts the payload for id.
func (s *SQLiteStore) Write(ctx context.Context, id string, data map[string]any) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	b, err := encode(id, data)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO instances (id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		id, string(b), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write instance: %w", err)
	}
	return nil
}

// Delete removes id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

// List returns every record sorted by id.
func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM instances ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		data, err := decode(id, []byte(raw))
		if err != nil {
			return nil, err
		}
		records = append(records, Record{ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	return records, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

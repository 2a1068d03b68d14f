// Package memory holds the assistant's long-lived key-value facts, the
// things a user asks it to remember across sessions.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoFact is returned by Recall when nothing is stored under a key.
var ErrNoFact = errors.New("no fact stored")

// Fact is one remembered key-value pair.
type Fact struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists facts. Remember overwrites an existing value for the key.
type Store interface {
	Remember(ctx context.Context, key, value string) error
	Recall(ctx context.Context, key string) (string, error)
	Forget(ctx context.Context, key string) error
	All(ctx context.Context) ([]Fact, error)
}

// SQLiteStore keeps facts in a table alongside the conversation store,
// sharing the same database handle.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore ensures the facts table exists on the given handle.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	createFactsTable := `
	CREATE TABLE IF NOT EXISTS facts (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);`
	if _, err := db.Exec(createFactsTable); err != nil {
		return nil, fmt.Errorf("failed to create facts table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Remember(ctx context.Context, key, value string) error {
	if key == "" {
		return errors.New("fact key cannot be empty")
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO facts (key, value, updated_at) VALUES (?, ?, ?)",
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store fact: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recall(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM facts WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", ErrNoFact, key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to recall fact: %w", err)
	}
	return value, nil
}

func (s *SQLiteStore) Forget(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM facts WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to forget fact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to forget fact: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNoFact, key)
	}
	return nil
}

func (s *SQLiteStore) All(ctx context.Context) ([]Fact, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value, updated_at FROM facts ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to list facts: %w", err)
	}
	defer rows.Close()

	facts := []Fact{}
	for rows.Next() {
		var f Fact
		if err := rows.Scan(&f.Key, &f.Value, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fact: %w", err)
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate facts: %w", err)
	}
	return facts, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"LocalChat/internal/session"
)

// SQLiteStore is the durable store backing the assistant between launches.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createSessionsTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);`

	createMessagesTable := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY(session_id) REFERENCES sessions(id)
	);`

	if _, err := db.Exec(createSessionsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}
	if _, err := db.Exec(createMessagesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create messages table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying handle so other components (fact memory) can
// share the same database file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) NewSession(ctx context.Context, model string) (*session.Session, error) {
	sess := session.New(model)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, title, model, created_at) VALUES (?, ?, ?, ?)",
		sess.ID, sess.Title, sess.Model, sess.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*session.Session, error) {
	sess := &session.Session{ID: id}
	err := s.db.QueryRowContext(ctx,
		"SELECT title, model, created_at FROM sessions WHERE id = ?", id,
	).Scan(&sess.Title, &sess.Model, &sess.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSession, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	msgs, err := s.History(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Messages = msgs
	return sess, nil
}

func (s *SQLiteStore) Append(ctx context.Context, id string, msg session.Message) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (session_id, role, content, timestamp) VALUES (?, ?, ?, ?)",
		id, msg.Role, msg.Content, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) History(ctx context.Context, id string) ([]session.Message, error) {
	if err := s.exists(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT role, content, timestamp FROM messages WHERE session_id = ? ORDER BY timestamp, id",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	messages := []session.Message{}
	for rows.Next() {
		var msg session.Message
		if err := rows.Scan(&msg.Role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*session.Session, error) {
	query := "SELECT id, title, model, created_at FROM sessions ORDER BY created_at DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*session.Session{}
	for rows.Next() {
		sess := &session.Session{}
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.Model, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

func (s *SQLiteStore) SetTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE sessions SET title = ? WHERE id = ?", title, id)
	if err != nil {
		return fmt.Errorf("failed to set title: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set title: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSession, id)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) exists(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM sessions WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", ErrInvalidSession, id)
	}
	if err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	return nil
}

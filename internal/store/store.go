package store

import (
	"context"
	"errors"

	"LocalChat/internal/session"
)

// ErrInvalidSession is returned when an operation references a session ID
// the store has never seen (or one that was deleted).
var ErrInvalidSession = errors.New("invalid session")

// Store persists sessions and their ordered message history.
type Store interface {
	// NewSession creates an empty session bound to a model binding name.
	NewSession(ctx context.Context, model string) (*session.Session, error)

	// Get returns a session with its full message history.
	Get(ctx context.Context, id string) (*session.Session, error)

	// Append adds a message to the end of a session's history.
	Append(ctx context.Context, id string, msg session.Message) error

	// History returns the ordered message sequence for a session.
	History(ctx context.Context, id string) ([]session.Message, error)

	// List returns sessions without messages, newest first. A non-positive
	// limit returns all sessions.
	List(ctx context.Context, limit int) ([]*session.Session, error)

	// SetTitle updates a session's display title.
	SetTitle(ctx context.Context, id, title string) error

	// Delete removes a session and its messages.
	Delete(ctx context.Context, id string) error

	Close() error
}

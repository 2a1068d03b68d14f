package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"LocalChat/internal/session"
	"LocalChat/internal/store"
)

func testStores(t *testing.T) map[string]store.Store {
	t.Helper()

	sqlite, err := store.OpenSQLite(filepath.Join(t.TempDir(), "localchat.db"))
	if err != nil {
		t.Fatalf("OpenSQLite err: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]store.Store{
		"sqlite": sqlite,
		"memory": store.NewMemoryStore(),
	}
}

func TestNewSessionHasEmptyHistory(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			sess, err := s.NewSession(ctx, "mock")
			if err != nil {
				t.Fatalf("NewSession err: %v", err)
			}
			if sess.ID == "" {
				t.Fatal("expected non-empty session ID")
			}

			msgs, err := s.History(ctx, sess.ID)
			if err != nil {
				t.Fatalf("History err: %v", err)
			}
			if len(msgs) != 0 {
				t.Fatalf("expected empty history, got %d messages", len(msgs))
			}
		})
	}
}

func TestAppendThenHistory(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			sess, err := s.NewSession(ctx, "mock")
			if err != nil {
				t.Fatalf("NewSession err: %v", err)
			}

			msg := session.Message{
				Role:      session.RoleUser,
				Content:   "hi",
				Timestamp: time.Now().UTC().Truncate(time.Millisecond),
			}
			if err := s.Append(ctx, sess.ID, msg); err != nil {
				t.Fatalf("Append err: %v", err)
			}

			msgs, err := s.History(ctx, sess.ID)
			if err != nil {
				t.Fatalf("History err: %v", err)
			}
			if len(msgs) != 1 {
				t.Fatalf("expected 1 message, got %d", len(msgs))
			}
			if msgs[0].Role != msg.Role || msgs[0].Content != msg.Content {
				t.Fatalf("round trip mismatch: got %+v want %+v", msgs[0], msg)
			}
			if !msgs[0].Timestamp.Equal(msg.Timestamp) {
				t.Fatalf("timestamp mismatch: got %v want %v", msgs[0].Timestamp, msg.Timestamp)
			}
		})
	}
}

func TestAppendUnknownSession(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Append(ctx, "no-such-session", session.NewMessage(session.RoleUser, "hi"))
			if !errors.Is(err, store.ErrInvalidSession) {
				t.Fatalf("expected ErrInvalidSession, got %v", err)
			}
		})
	}
}

func TestHistoryPreservesOrder(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			sess, err := s.NewSession(ctx, "mock")
			if err != nil {
				t.Fatalf("NewSession err: %v", err)
			}

			base := time.Now().UTC().Truncate(time.Millisecond)
			a := session.Message{Role: session.RoleUser, Content: "A", Timestamp: base}
			b := session.Message{Role: session.RoleAssistant, Content: "B", Timestamp: base.Add(time.Millisecond)}

			if err := s.Append(ctx, sess.ID, a); err != nil {
				t.Fatalf("Append A err: %v", err)
			}
			if err := s.Append(ctx, sess.ID, b); err != nil {
				t.Fatalf("Append B err: %v", err)
			}

			msgs, err := s.History(ctx, sess.ID)
			if err != nil {
				t.Fatalf("History err: %v", err)
			}
			if len(msgs) != 2 || msgs[0].Content != "A" || msgs[1].Content != "B" {
				t.Fatalf("expected [A, B], got %+v", msgs)
			}
		})
	}
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			first, err := s.NewSession(ctx, "mock")
			if err != nil {
				t.Fatalf("NewSession err: %v", err)
			}
			// Creation timestamps need to differ for the ordering to be
			// observable.
			time.Sleep(5 * time.Millisecond)
			second, err := s.NewSession(ctx, "mock")
			if err != nil {
				t.Fatalf("NewSession err: %v", err)
			}

			sessions, err := s.List(ctx, 0)
			if err != nil {
				t.Fatalf("List err: %v", err)
			}
			if len(sessions) != 2 {
				t.Fatalf("expected 2 sessions, got %d", len(sessions))
			}
			if sessions[0].ID != second.ID || sessions[1].ID != first.ID {
				t.Fatalf("expected newest first, got %s then %s", sessions[0].ID, sessions[1].ID)
			}

			limited, err := s.List(ctx, 1)
			if err != nil {
				t.Fatalf("List limited err: %v", err)
			}
			if len(limited) != 1 || limited[0].ID != second.ID {
				t.Fatalf("expected only newest session, got %+v", limited)
			}
		})
	}
}

func TestSetTitle(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			sess, err := s.NewSession(ctx, "mock")
			if err != nil {
				t.Fatalf("NewSession err: %v", err)
			}
			if err := s.SetTitle(ctx, sess.ID, "Trip planning"); err != nil {
				t.Fatalf("SetTitle err: %v", err)
			}

			got, err := s.Get(ctx, sess.ID)
			if err != nil {
				t.Fatalf("Get err: %v", err)
			}
			if got.Title != "Trip planning" {
				t.Fatalf("unexpected title: %q", got.Title)
			}

			if err := s.SetTitle(ctx, "missing", "x"); !errors.Is(err, store.ErrInvalidSession) {
				t.Fatalf("expected ErrInvalidSession, got %v", err)
			}
		})
	}
}

func TestDeleteSession(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			sess, err := s.NewSession(ctx, "mock")
			if err != nil {
				t.Fatalf("NewSession err: %v", err)
			}
			if err := s.Append(ctx, sess.ID, session.NewMessage(session.RoleUser, "hi")); err != nil {
				t.Fatalf("Append err: %v", err)
			}

			if err := s.Delete(ctx, sess.ID); err != nil {
				t.Fatalf("Delete err: %v", err)
			}
			if _, err := s.History(ctx, sess.ID); !errors.Is(err, store.ErrInvalidSession) {
				t.Fatalf("expected ErrInvalidSession after delete, got %v", err)
			}
			if err := s.Delete(ctx, sess.ID); !errors.Is(err, store.ErrInvalidSession) {
				t.Fatalf("expected ErrInvalidSession on second delete, got %v", err)
			}
		})
	}
}

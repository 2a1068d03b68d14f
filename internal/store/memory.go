package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"LocalChat/internal/session"
)

// MemoryStore keeps sessions in process memory. It backs tests and the
// -store memory mode where nothing should touch disk.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	messages map[string][]session.Message
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*session.Session),
		messages: make(map[string][]session.Message),
	}
}

func (s *MemoryStore) NewSession(_ context.Context, model string) (*session.Session, error) {
	sess := session.New(model)

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.messages[sess.ID] = make([]session.Message, 0, 16)
	s.mu.Unlock()

	copied := *sess
	return &copied, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSession, id)
	}
	copied := *sess
	copied.Messages = append([]session.Message(nil), s.messages[id]...)
	return &copied, nil
}

func (s *MemoryStore) Append(_ context.Context, id string, msg session.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrInvalidSession, id)
	}
	s.messages[id] = append(s.messages[id], msg)
	return nil
}

func (s *MemoryStore) History(_ context.Context, id string) ([]session.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSession, id)
	}
	copied := make([]session.Message, len(msgs))
	copy(copied, msgs)
	return copied, nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		copied := *sess
		sessions = append(sessions, &copied)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (s *MemoryStore) SetTitle(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidSession, id)
	}
	sess.Title = title
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrInvalidSession, id)
	}
	delete(s.sessions, id)
	delete(s.messages, id)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

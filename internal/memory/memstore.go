package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MapStore is the in-memory Store used with `-store memory` and in tests.
type MapStore struct {
	mu    sync.RWMutex
	facts map[string]Fact
}

// NewMapStore returns an empty in-memory fact store.
func NewMapStore() *MapStore {
	return &MapStore{facts: make(map[string]Fact)}
}

func (s *MapStore) Remember(_ context.Context, key, value string) error {
	if key == "" {
		return errors.New("fact key cannot be empty")
	}
	s.mu.Lock()
	s.facts[key] = Fact{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	s.mu.Unlock()
	return nil
}

func (s *MapStore) Recall(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.facts[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoFact, key)
	}
	return f.Value, nil
}

func (s *MapStore) Forget(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.facts[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNoFact, key)
	}
	delete(s.facts, key)
	return nil
}

func (s *MapStore) All(_ context.Context) ([]Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	facts := make([]Fact, 0, len(s.facts))
	for _, f := range s.facts {
		facts = append(facts, f)
	}
	sort.Slice(facts, func(i, j int) bool { return facts[i].Key < facts[j].Key })
	return facts, nil
}

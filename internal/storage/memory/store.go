package memory

import (
	"sync"

	"github.com/tjfontaine/itsm-client/internal/core/ports"
)

// Store is an in-memory implementation of KVStore
type Store struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ ports.KVStore = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		values: make(map[string]string),
	}
}

func (s *Store) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	return v, ok, nil
}

func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}

func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.values)
}

func (s *Store) Close() error {
	return nil
}

package halcyon

import "sync"

// Store is a mutex-guarded map shared by all event handlers of a client.
// Handlers run concurrently, so reads take the read lock and writes the
// write lock.
type Store struct {
	mu   sync.RWMutex
	data map[any]any
}

func NewStore() *Store {
	return &Store{
		data: make(map[any]any),
	}
}

// Get returns the value stored under key.
func (s *Store) Get(key any) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]

	return value, ok
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(key, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
}

// Delete removes the value stored under key.
func (s *Store) Delete(key any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data)
}

// StoreGet fetches a typed value from the store. ok is false when the key
// is absent or holds a different type.
func StoreGet[T any](s *Store, key any) (T, bool) {
	value, ok := s.Get(key)
	if !ok {
		var zero T

		return zero, false
	}

	typed, ok := value.(T)

	return typed, ok
}

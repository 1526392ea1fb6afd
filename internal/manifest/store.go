// Package manifest holds the integrity store: the mapping from archive entry
// name to the hex digest of the entry's plaintext, and its on-disk format.
package manifest

import (
	"sort"
	"sync"
)

// Store is safe for concurrent use. Entries are only ever added during a run.
type Store struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewStore() *Store {
	return &Store{entries: make(map[string]string)}
}

// FromMap copies m into a new store.
func FromMap(m map[string]string) *Store {
	s := NewStore()
	for k, v := range m {
		s.entries[k] = v
	}
	return s
}

func (s *Store) Put(name, digest string) {
	s.mu.Lock()
	s.entries[name] = digest
	s.mu.Unlock()
}

func (s *Store) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	digest, ok := s.entries[name]
	return digest, ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Names returns the entry names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	s.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the entries.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps history in process memory. The CLI falls back to it when
// the database cannot be opened.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryStore creates an empty in-memory history
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record implements HistoryStore.Record
func (s *MemoryStore) Record(ctx context.Context, e Entry) error {
	if e.Operation == "" {
		return ErrMissingOperation
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

// List implements HistoryStore.List
func (s *MemoryStore) List(ctx context.Context, f Filter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []Entry{}
	for _, e := range s.entries {
		if f.match(e) {
			result = append(result, e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	if len(result) > f.limit() {
		result = result[:f.limit()]
	}
	return result, nil
}

// Close implements HistoryStore.Close
func (s *MemoryStore) Close() error {
	return nil
}

// Clear drops every entry
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

var _ HistoryStore = (*MemoryStore)(nil)

package wal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemory is the process-local WAL store. Entries survive only for the life
// of the process; production runs use the Postgres store.
type InMemory struct {
	mu      sync.RWMutex
	entries []Entry
	seq     uint64
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Record(_ context.Context, entry Entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	entry.Sequence = s.seq
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	s.entries = append(s.entries, entry)
	return entry.ID, nil
}

func (s *InMemory) ListByTarget(_ context.Context, target string) ([]Entry, error) {
	return s.filter(func(e Entry) bool { return e.Target == target }), nil
}

func (s *InMemory) ListBySaga(_ context.Context, sagaID string) ([]Entry, error) {
	return s.filter(func(e Entry) bool { return e.SagaID == sagaID }), nil
}

// All returns every entry in sequence order. Tests use this to assert the
// WAL-before-effect ordering.
func (s *InMemory) All() []Entry {
	return s.filter(func(Entry) bool { return true })
}

func (s *InMemory) filter(keep func(Entry) bool) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

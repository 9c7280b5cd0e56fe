package saga

import (
	"context"
	"encoding/json"
	"sync"

	"policybridge/pkg/platform/sentinel"
)

// MemoryStore keeps saga state in a map. State is stored as JSON so the
// memory and Redis stores share serialization behavior exactly.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string][]byte
	order  []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string][]byte)}
}

func (s *MemoryStore) Create(_ context.Context, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[state.ID]; ok {
		return sentinel.ErrConflict
	}
	doc, err := json.Marshal(state)
	if err != nil {
		return err
	}
	s.states[state.ID] = doc
	s.order = append(s.order, state.ID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*State, error) {
	s.mu.RLock()
	doc, ok := s.states[id]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	var state State
	if err := json.Unmarshal(doc, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *MemoryStore) Update(_ context.Context, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[state.ID]; !ok {
		return sentinel.ErrNotFound
	}
	doc, err := json.Marshal(state)
	if err != nil {
		return err
	}
	s.states[state.ID] = doc
	return nil
}

func (s *MemoryStore) List(_ context.Context, filter Filter) ([]*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*State
	for _, id := range s.order {
		var state State
		if err := json.Unmarshal(s.states[id], &state); err != nil {
			return nil, err
		}
		if !filter.matches(&state) {
			continue
		}
		out = append(out, &state)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (f Filter) matches(state *State) bool {
	if f.Name != "" && state.Name != f.Name {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if state.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

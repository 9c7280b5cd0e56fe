package store

import (
	"context"
	"sort"
	"sync"

	"policybridge/internal/registry/models"
	"policybridge/pkg/platform/sentinel"
)

// InMemory keeps records in a map guarded by a registry-level RWMutex plus a
// per-record mutex. The per-record lock is held across validate-then-mutate so
// concurrent status updates on the same id serialize instead of racing.
type InMemory struct {
	mu      sync.RWMutex
	records map[string]*slot
}

type slot struct {
	mu  sync.Mutex
	rec *models.PolicyRecord
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[string]*slot)}
}

func (s *InMemory) FindByID(_ context.Context, id string) (*models.PolicyRecord, error) {
	s.mu.RLock()
	sl, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.rec.Clone(), nil
}

func (s *InMemory) RegisterEntry(_ context.Context, id string, entry models.LocationEntry) (*models.PolicyRecord, error) {
	sl := s.slotFor(id)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.rec == nil {
		sl.rec = models.NewPolicyRecord(id, entry)
	} else {
		sl.rec.AppendLocation(entry)
	}
	return sl.rec.Clone(), nil
}

func (s *InMemory) Execute(_ context.Context, id string,
	validate func(*models.PolicyRecord) error,
	mutate func(*models.PolicyRecord)) (*models.PolicyRecord, error) {

	s.mu.RLock()
	sl, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.rec == nil {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(sl.rec); err != nil {
		return nil, err
	}
	mutate(sl.rec)
	return sl.rec.Clone(), nil
}

func (s *InMemory) ListByLocation(_ context.Context, loc models.Location) ([]*models.PolicyRecord, error) {
	return s.collect(func(rec *models.PolicyRecord) bool {
		return rec.CurrentLocation == loc
	})
}

func (s *InMemory) ListByIDs(_ context.Context, ids []string) ([]*models.PolicyRecord, error) {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	return s.collect(func(rec *models.PolicyRecord) bool {
		_, ok := wanted[rec.ID]
		return ok
	})
}

func (s *InMemory) All(_ context.Context) ([]*models.PolicyRecord, error) {
	return s.collect(func(*models.PolicyRecord) bool { return true })
}

func (s *InMemory) slotFor(id string) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.records[id]
	if !ok {
		sl = &slot{}
		s.records[id] = sl
	}
	return sl
}

func (s *InMemory) collect(keep func(*models.PolicyRecord) bool) ([]*models.PolicyRecord, error) {
	s.mu.RLock()
	slots := make([]*slot, 0, len(s.records))
	for _, sl := range s.records {
		slots = append(slots, sl)
	}
	s.mu.RUnlock()

	var out []*models.PolicyRecord
	for _, sl := range slots {
		sl.mu.Lock()
		if sl.rec != nil && keep(sl.rec) {
			out = append(out, sl.rec.Clone())
		}
		sl.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

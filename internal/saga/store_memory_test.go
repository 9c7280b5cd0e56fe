package saga

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"policybridge/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *MemoryStore
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewMemoryStore()
}

func (s *MemoryStoreSuite) seed(id, name string, status Status) {
	s.Require().NoError(s.store.Create(s.ctx, &State{
		ID:        id,
		Name:      name,
		Status:    status,
		StartedAt: time.Now(),
	}))
}

func (s *MemoryStoreSuite) TestCreateAndGet() {
	s.seed("s1", "ingest", StatusRunning)

	got, err := s.store.Get(s.ctx, "s1")
	s.Require().NoError(err)
	s.Equal("ingest", got.Name)
	s.Equal(StatusRunning, got.Status)

	s.Run("duplicate id conflicts", func() {
		err := s.store.Create(s.ctx, &State{ID: "s1", Name: "ingest"})
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("missing id", func() {
		_, err := s.store.Get(s.ctx, "nope")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestUpdate() {
	s.seed("s1", "ingest", StatusRunning)

	got, err := s.store.Get(s.ctx, "s1")
	s.Require().NoError(err)
	got.Status = StatusCompleted
	s.Require().NoError(s.store.Update(s.ctx, got))

	again, err := s.store.Get(s.ctx, "s1")
	s.Require().NoError(err)
	s.Equal(StatusCompleted, again.Status)

	s.Run("update of unknown saga", func() {
		err := s.store.Update(s.ctx, &State{ID: "ghost"})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestList() {
	s.seed("s1", "ingest", StatusCompleted)
	s.seed("s2", "ingest", StatusFailed)
	s.seed("s3", "route", StatusCompleted)

	s.Run("all", func() {
		states, err := s.store.List(s.ctx, Filter{})
		s.Require().NoError(err)
		s.Len(states, 3)
	})

	s.Run("by name", func() {
		states, err := s.store.List(s.ctx, Filter{Name: "ingest"})
		s.Require().NoError(err)
		s.Len(states, 2)
	})

	s.Run("by status", func() {
		states, err := s.store.List(s.ctx, Filter{Statuses: []Status{StatusFailed}})
		s.Require().NoError(err)
		s.Require().Len(states, 1)
		s.Equal("s2", states[0].ID)
	})

	s.Run("limit preserves insertion order", func() {
		states, err := s.store.List(s.ctx, Filter{Limit: 2})
		s.Require().NoError(err)
		s.Require().Len(states, 2)
		s.Equal("s1", states[0].ID)
		s.Equal("s2", states[1].ID)
	})
}

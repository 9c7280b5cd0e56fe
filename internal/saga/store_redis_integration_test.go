//go:build integration

package saga

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"policybridge/pkg/platform/sentinel"
	"policybridge/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	ctx   context.Context
	redis *containers.RedisContainer
	store *RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redis = containers.NewRedisContainer(s.T())
	s.store = NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisStoreSuite) state(id, name string, status Status) *State {
	return &State{
		ID:        id,
		Name:      name,
		Status:    status,
		Context:   RunContext{"run_id": id},
		StartedAt: time.Now().UTC(),
	}
}

func (s *RedisStoreSuite) TestCreateAndGet() {
	s.Require().NoError(s.store.Create(s.ctx, s.state("saga-1", "ingest", StatusRunning)))

	got, err := s.store.Get(s.ctx, "saga-1")
	s.Require().NoError(err)
	s.Equal("ingest", got.Name)
	s.Equal(StatusRunning, got.Status)
	s.Equal(RunContext{"run_id": "saga-1"}, got.Context)

	s.Run("duplicate id", func() {
		err := s.store.Create(s.ctx, s.state("saga-1", "ingest", StatusRunning))
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("missing id", func() {
		_, err := s.store.Get(s.ctx, "saga-404")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *RedisStoreSuite) TestUpdate() {
	st := s.state("saga-1", "ingest", StatusRunning)
	s.Require().NoError(s.store.Create(s.ctx, st))

	st.Status = StatusCompleted
	st.Milestones = []Milestone{{ID: "ms-1", Step: "acquire_source"}}
	s.Require().NoError(s.store.Update(s.ctx, st))

	got, err := s.store.Get(s.ctx, "saga-1")
	s.Require().NoError(err)
	s.Equal(StatusCompleted, got.Status)
	s.Require().Len(got.Milestones, 1)
	s.Equal("acquire_source", got.Milestones[0].Step)

	s.Run("unknown saga", func() {
		err := s.store.Update(s.ctx, s.state("saga-404", "ingest", StatusFailed))
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *RedisStoreSuite) TestList() {
	s.Require().NoError(s.store.Create(s.ctx, s.state("saga-1", "ingest", StatusCompleted)))
	s.Require().NoError(s.store.Create(s.ctx, s.state("saga-2", "ingest", StatusFailed)))
	s.Require().NoError(s.store.Create(s.ctx, s.state("saga-3", "route", StatusCompleted)))

	s.Run("all in insertion order", func() {
		states, err := s.store.List(s.ctx, Filter{})
		s.Require().NoError(err)
		s.Require().Len(states, 3)
		s.Equal("saga-1", states[0].ID)
		s.Equal("saga-3", states[2].ID)
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
		s.Equal("saga-2", states[0].ID)
	})

	s.Run("limit", func() {
		states, err := s.store.List(s.ctx, Filter{Limit: 2})
		s.Require().NoError(err)
		s.Len(states, 2)
	})
}

func (s *RedisStoreSuite) TestExpiredStateSkippedInList() {
	short := NewRedisStore(s.redis.Client).WithTTL(50 * time.Millisecond)
	s.Require().NoError(short.Create(s.ctx, s.state("saga-ttl", "ingest", StatusRunning)))
	s.Require().NoError(s.store.Create(s.ctx, s.state("saga-keep", "ingest", StatusRunning)))

	time.Sleep(100 * time.Millisecond)

	states, err := s.store.List(s.ctx, Filter{})
	s.Require().NoError(err)
	s.Require().Len(states, 1)
	s.Equal("saga-keep", states[0].ID)
}

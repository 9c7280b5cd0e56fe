package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"policybridge/internal/registry/models"
	regservice "policybridge/internal/registry/service"
	"policybridge/internal/registry/store"
	dErrors "policybridge/pkg/domain-errors"
)

type EngineSuite struct {
	suite.Suite
	ctx      context.Context
	registry *regservice.Service
	engine   *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()

	registry, err := regservice.New(store.NewInMemory())
	s.Require().NoError(err)
	s.registry = registry

	engine, err := New(registry)
	s.Require().NoError(err)
	s.engine = engine
}

func (s *EngineSuite) register(id, systemID string) {
	_, err := s.registry.RegisterPolicy(s.ctx, id, models.LocationLegacySystem, systemID, nil)
	s.Require().NoError(err)
}

func (s *EngineSuite) TestNew() {
	_, err := New(nil)
	s.Error(err)
}

func (s *EngineSuite) TestBadRequests() {
	_, err := s.engine.Reconcile(s.ctx, "", "New", nil)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = s.engine.Reconcile(s.ctx, "Legacy", "Legacy", nil)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

// TestFilteredReconcile is the two-system walkthrough: POL-1 registered in
// both systems, POL-2 only in the legacy one.
func (s *EngineSuite) TestFilteredReconcile() {
	s.register("POL-1", "Legacy")
	s.register("POL-1", "New")
	s.register("POL-2", "Legacy")

	res, err := s.engine.Reconcile(s.ctx, "Legacy", "New", []string{"POL-1", "POL-2"})
	s.Require().NoError(err)

	s.Equal([]string{"POL-1"}, res.InBoth)
	s.Equal([]string{"POL-2"}, res.InAOnly)
	s.Empty(res.InBOnly)
	s.Empty(res.InNeither)

	s.Require().Len(res.Discrepancies, 1)
	s.Equal("POL-2", res.Discrepancies[0].PolicyID)
	s.Equal("Legacy", res.Discrepancies[0].PresentIn)
	s.Equal("New", res.Discrepancies[0].MissingIn)
}

func (s *EngineSuite) TestPartitionsExhaustiveAndDisjoint() {
	s.register("POL-1", "Legacy")
	s.register("POL-1", "New")
	s.register("POL-2", "Legacy")
	s.register("POL-3", "New")
	s.register("POL-4", "Archive")

	ids := []string{"POL-1", "POL-2", "POL-3", "POL-4", "POL-5"}
	res, err := s.engine.Reconcile(s.ctx, "Legacy", "New", ids)
	s.Require().NoError(err)

	s.Equal([]string{"POL-1"}, res.InBoth)
	s.Equal([]string{"POL-2"}, res.InAOnly)
	s.Equal([]string{"POL-3"}, res.InBOnly)
	s.ElementsMatch([]string{"POL-4", "POL-5"}, res.InNeither)

	s.Run("exhaustive", func() {
		union := make(map[string]int)
		for _, part := range [][]string{res.InBoth, res.InAOnly, res.InBOnly, res.InNeither} {
			for _, id := range part {
				union[id]++
			}
		}
		s.Len(union, len(ids))
		for id, n := range union {
			s.Equal(1, n, "id %s appears in %d partitions", id, n)
		}
	})

	s.Run("discrepancy iff presence xor", func() {
		s.Len(res.Discrepancies, 2)
	})
}

func (s *EngineSuite) TestUnfilteredReconcileCoversWholeRegistry() {
	s.register("POL-1", "Legacy")
	s.register("POL-2", "New")

	res, err := s.engine.Reconcile(s.ctx, "Legacy", "New", nil)
	s.Require().NoError(err)
	s.Equal(2, res.Total())
	s.Empty(res.InNeither, "registered records are in at least one system")
}

func (s *EngineSuite) TestIDFilterSanitized() {
	s.register("POL-1", "Legacy")

	res, err := s.engine.Reconcile(s.ctx, "Legacy", "New", []string{" POL-1", "POL-1", "", "  "})
	s.Require().NoError(err)
	s.Equal(1, res.Total())
	s.Equal([]string{"POL-1"}, res.InAOnly)
}

func (s *EngineSuite) TestNeverSelfHealing() {
	s.register("POL-2", "Legacy")

	_, err := s.engine.Reconcile(s.ctx, "Legacy", "New", nil)
	s.Require().NoError(err)

	rec, err := s.registry.GetPolicyLocation(s.ctx, "POL-2")
	s.Require().NoError(err)
	s.Len(rec.History, 1, "reconciliation must not write to the registry")
}

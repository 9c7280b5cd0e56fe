package migration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"policybridge/internal/collab"
	"policybridge/internal/registry/models"
	regservice "policybridge/internal/registry/service"
	"policybridge/internal/registry/store"
	"policybridge/internal/resolver"
	"policybridge/internal/saga"
	"policybridge/internal/wal"
	dErrors "policybridge/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	ctx context.Context

	content *collab.FakeContentStore
	parser  *collab.FakeFileParser
	mapper  *collab.FakeSchemaMapper
	router  *collab.FakeRoutingEngine
	docs    *collab.FakeDocumentStore
	lineage *collab.FakeLineageRecorder

	registry *regservice.Service
	walStore *wal.InMemory
	svc      *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()

	s.content = collab.NewFakeContentStore()
	s.parser = &collab.FakeFileParser{Records: 2}
	s.mapper = &collab.FakeSchemaMapper{}
	s.router = &collab.FakeRoutingEngine{Destination: "new-core"}
	s.docs = collab.NewFakeDocumentStore()
	s.lineage = collab.NewFakeLineageRecorder()

	discovery := resolver.NewDiscovery()
	discovery.Register(SvcContentStore, s.content)
	discovery.Register(SvcFileParser, s.parser)
	discovery.Register(SvcSchemaMapper, s.mapper)
	discovery.Register(SvcRoutingEngine, s.router)
	discovery.Register(SvcDocumentStore, s.docs)
	discovery.Register(SvcLineageRecorder, s.lineage)

	registry, err := regservice.New(store.NewInMemory())
	s.Require().NoError(err)
	s.registry = registry

	s.walStore = wal.NewInMemory()
	svc, err := New(resolver.NewChain(discovery), registry, s.walStore)
	s.Require().NoError(err)
	s.svc = svc
}

func (s *ServiceSuite) TestNew() {
	s.Run("nil resolver", func() {
		_, err := New(nil, s.registry, s.walStore)
		s.Error(err)
	})
	s.Run("nil registrar", func() {
		_, err := New(resolver.NewChain(resolver.NewDiscovery()), nil, s.walStore)
		s.Error(err)
	})
	s.Run("nil wal sink", func() {
		_, err := New(resolver.NewChain(resolver.NewDiscovery()), s.registry, nil)
		s.Error(err)
	})
}

func (s *ServiceSuite) TestIngestHappyPath() {
	res, err := s.svc.IngestLegacyData(s.ctx, IngestRequest{
		FileName: "policies-2026-q1.csv",
		Payload:  []byte("POL-1,active\nPOL-2,lapsed\n"),
		Wave:     "wave-1",
	})
	s.Require().NoError(err)
	s.Require().True(res.Success, "ingest failed: %s", res.Error)

	s.Equal("2", res.Context[keyRecordCount])
	s.Equal("legacy-policy-schema", res.Context[keySchemaID])
	s.NotEmpty(res.Context[keyFileID])
	s.True(s.content.Exists(res.Context[keyFileID]))
	s.True(s.docs.Exists(res.Context[keyRecordsDoc]))
	s.True(s.docs.Exists(res.Context[keyProfileDoc]))
	s.True(s.docs.Exists(res.Context[keyMetadataDoc]))

	s.Run("quality profile describes the parse", func() {
		profile, err := loadArtifact[QualityProfile](s.ctx, s.docs, res.Context[keyProfileDoc])
		s.Require().NoError(err)
		s.Equal(2, profile.Total)
		s.Equal(2, profile.DistinctPolicyIDs)
		s.Zero(profile.MissingPolicyID)
	})

	s.Run("lineage edge per completed step", func() {
		s.Len(s.lineage.Edges(), 5)
	})

	s.Run("wal entry per step, written in order", func() {
		entries := s.walStore.All()
		s.Require().Len(entries, 5)
		s.Equal("migration.ingest.acquire_source", entries[0].Namespace)
		s.Equal("migration.ingest.persist_metadata", entries[4].Namespace)
	})
}

func (s *ServiceSuite) TestIngestParseFailureRollsBack() {
	s.parser.Fail = true

	res, err := s.svc.IngestLegacyData(s.ctx, IngestRequest{
		FileName: "broken.csv",
		Payload:  []byte("not,really,csv"),
	})
	s.Require().NoError(err)
	s.False(res.Success)
	s.Equal("parse_records", res.FailedStep)
	s.True(res.Compensated)

	s.Run("acquired file is deleted", func() {
		s.False(s.content.Exists(res.Context[keyFileID]))
	})

	s.Run("compensation is wal logged", func() {
		var compensations int
		for _, e := range s.walStore.All() {
			if e.Namespace == "migration.ingest.acquire_source.compensate" {
				compensations++
			}
		}
		s.Equal(1, compensations)
	})

	s.Run("saga state is compensated", func() {
		state, err := s.svc.GetSaga(s.ctx, res.SagaID)
		s.Require().NoError(err)
		s.Equal(saga.StatusCompensated, state.Status)
	})
}

func (s *ServiceSuite) TestIngestBadRequest() {
	_, err := s.svc.IngestLegacyData(s.ctx, IngestRequest{Payload: []byte("x")})
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = s.svc.IngestLegacyData(s.ctx, IngestRequest{FileName: "f.csv"})
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

// ingest runs the full ingest pipeline and returns its result context for
// chaining into map and route tests.
func (s *ServiceSuite) ingest() saga.RunContext {
	res, err := s.svc.IngestLegacyData(s.ctx, IngestRequest{
		FileName: "policies.csv",
		Payload:  []byte("POL-1\nPOL-2\n"),
		Wave:     "wave-1",
	})
	s.Require().NoError(err)
	s.Require().True(res.Success, "ingest failed: %s", res.Error)
	return res.Context
}

func (s *ServiceSuite) TestMapToCanonical() {
	ingested := s.ingest()

	res, err := s.svc.MapToCanonical(s.ctx, MapRequest{
		RecordsDoc:    ingested[keyRecordsDoc],
		SchemaID:      ingested[keySchemaID],
		SchemaVersion: ingested[keySchemaVersion],
	})
	s.Require().NoError(err)
	s.Require().True(res.Success, "map failed: %s", res.Error)

	s.True(s.docs.Exists(res.Context[keyCanonicalDoc]))
	s.True(s.docs.Exists(res.Context[keyMappingDoc]))

	canonical, err := loadArtifact[[]collab.CanonicalRecord](s.ctx, s.docs, res.Context[keyCanonicalDoc])
	s.Require().NoError(err)
	s.Len(canonical, 2)

	s.Run("schema discovered when only file id given", func() {
		res, err := s.svc.MapToCanonical(s.ctx, MapRequest{
			RecordsDoc: ingested[keyRecordsDoc],
			FileID:     ingested[keyFileID],
		})
		s.Require().NoError(err)
		s.Require().True(res.Success)
		s.Equal("legacy-policy-schema", res.Context[keySchemaID])
	})

	s.Run("records_doc required", func() {
		_, err := s.svc.MapToCanonical(s.ctx, MapRequest{FileID: "f"})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestMapValidationFailureRollsBack() {
	ingested := s.ingest()
	s.mapper.FailValidate = true

	res, err := s.svc.MapToCanonical(s.ctx, MapRequest{
		RecordsDoc: ingested[keyRecordsDoc],
		SchemaID:   ingested[keySchemaID],
	})
	s.Require().NoError(err)
	s.False(res.Success)
	s.Equal("validate_model", res.FailedStep)
	s.True(res.Compensated)

	s.Run("canonical artifact removed, ingest artifacts untouched", func() {
		s.False(s.docs.Exists(res.Context[keyCanonicalDoc]))
		s.True(s.docs.Exists(ingested[keyRecordsDoc]))
	})
}

func (s *ServiceSuite) TestRoutePolicies() {
	ingested := s.ingest()
	mapped, err := s.svc.MapToCanonical(s.ctx, MapRequest{
		RecordsDoc: ingested[keyRecordsDoc],
		SchemaID:   ingested[keySchemaID],
	})
	s.Require().NoError(err)
	s.Require().True(mapped.Success)

	res, err := s.svc.RoutePolicies(s.ctx, RouteRequest{
		CanonicalDoc: mapped.Context[keyCanonicalDoc],
		Wave:         "wave-1",
		SystemID:     "legacy-core",
	})
	s.Require().NoError(err)
	s.Require().True(res.Success, "route failed: %s", res.Error)
	s.True(s.docs.Exists(res.Context[keyDecisionsDoc]))

	s.Run("routed policies land in the registry", func() {
		records, err := s.registry.GetPoliciesByLocation(s.ctx, models.LocationLegacySystem)
		s.Require().NoError(err)
		s.Require().Len(records, 2)
		for _, rec := range records {
			s.Equal(models.StatusNotStarted, rec.MigrationStatus)
			s.Equal("new-core", rec.History[len(rec.History)-1].Metadata["destination"])
		}
	})

	s.Run("canonical_doc required", func() {
		_, err := s.svc.RoutePolicies(s.ctx, RouteRequest{})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestCollaboratorUnavailable() {
	// A resolver with no registrations: every step fails before any side
	// effect, so there is nothing to compensate.
	empty := resolver.NewChain(resolver.NewDiscovery(), resolver.NewConstruction())
	svc, err := New(empty, s.registry, s.walStore)
	s.Require().NoError(err)

	res, err := svc.IngestLegacyData(s.ctx, IngestRequest{FileName: "f.csv", Payload: []byte("x")})
	s.Require().NoError(err)
	s.False(res.Success)
	s.Equal("acquire_source", res.FailedStep)
}

func (s *ServiceSuite) TestResumeAfterFailure() {
	s.parser.Fail = true
	failed, err := s.svc.IngestLegacyData(s.ctx, IngestRequest{
		FileName: "retry.csv",
		Payload:  []byte("POL-9\n"),
	})
	s.Require().NoError(err)
	s.Require().False(failed.Success)

	s.parser.Fail = false
	res, err := s.svc.Resume(s.ctx, failed.SagaID)
	s.Require().NoError(err)
	s.True(res.Success, "resume failed: %s", res.Error)

	s.Run("unknown saga", func() {
		_, err := s.svc.Resume(s.ctx, "no-such-saga")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestCompensateMilestoneReplay() {
	s.parser.Fail = true
	failed, err := s.svc.IngestLegacyData(s.ctx, IngestRequest{
		FileName: "replay.csv",
		Payload:  []byte("POL-9\n"),
	})
	s.Require().NoError(err)
	s.Require().False(failed.Success)

	state, err := s.svc.GetSaga(s.ctx, failed.SagaID)
	s.Require().NoError(err)
	s.Require().Len(state.Milestones, 1)

	// The file is already gone from rollback; replaying the compensation
	// must still succeed because Delete is idempotent.
	s.Require().NoError(s.svc.CompensateMilestone(s.ctx, failed.SagaID, state.Milestones[0].ID))
	s.False(s.content.Exists(failed.Context[keyFileID]))
}

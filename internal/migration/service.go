// Package migration drives the fixed migration pipelines: ingest,
// map-to-canonical, and route. Each pipeline is a saga; forward steps call
// external collaborators resolved by name, and completed steps are undone in
// reverse order when a later step fails. The package never parses files,
// computes schemas, or evaluates routing rules itself.
package migration

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"policybridge/internal/migration/metrics"
	"policybridge/internal/registry/models"
	"policybridge/internal/resolver"
	"policybridge/internal/saga"
	"policybridge/internal/wal"
	dErrors "policybridge/pkg/domain-errors"
	"policybridge/pkg/platform/sentinel"
)

// PolicyRegistrar is the slice of the registry service the route pipeline
// needs.
type PolicyRegistrar interface {
	RegisterPolicy(ctx context.Context, id string, loc models.Location, systemID string, metadata map[string]string) (*models.PolicyRecord, error)
}

type Service struct {
	resolve  resolver.Resolver
	registry PolicyRegistrar
	sagas    saga.Store
	logger   *slog.Logger
	metrics  *metrics.Metrics

	coordinators map[string]*saga.Coordinator
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSagaStore swaps the default in-memory saga state store, typically for
// the Redis-backed one.
func WithSagaStore(store saga.Store) Option {
	return func(s *Service) { s.sagas = store }
}

func New(res resolver.Resolver, registry PolicyRegistrar, sink wal.Sink, opts ...Option) (*Service, error) {
	if res == nil {
		return nil, errors.New("migration: resolver is required")
	}
	if registry == nil {
		return nil, errors.New("migration: policy registrar is required")
	}
	if sink == nil {
		return nil, errors.New("migration: wal sink is required")
	}

	s := &Service{
		resolve:  res,
		registry: registry,
		sagas:    saga.NewMemoryStore(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.coordinators = make(map[string]*saga.Coordinator, 3)
	for name, steps := range map[string][]saga.Step{
		PipelineIngest: s.ingestSteps(),
		PipelineMap:    s.mapSteps(),
		PipelineRoute:  s.routeSteps(),
	} {
		coord, err := saga.New(name, sink, steps,
			saga.WithStore(s.sagas),
			saga.WithLogger(s.logger),
		)
		if err != nil {
			return nil, err
		}
		s.coordinators[name] = coord
	}
	return s, nil
}

// IngestRequest carries one legacy source file into the ingest pipeline.
type IngestRequest struct {
	FileName string `json:"file_name"`
	Payload  []byte `json:"payload"`
	Wave     string `json:"wave"`
}

// MapRequest feeds parsed records into the map-to-canonical pipeline.
// RecordsDoc comes from a prior ingest run; the schema is either given
// explicitly or discovered from FileID.
type MapRequest struct {
	RecordsDoc    string `json:"records_doc"`
	FileID        string `json:"file_id"`
	SchemaID      string `json:"schema_id"`
	SchemaVersion string `json:"schema_version"`
}

// RouteRequest feeds canonical records into the route pipeline.
type RouteRequest struct {
	CanonicalDoc string `json:"canonical_doc"`
	Wave         string `json:"wave"`
	SystemID     string `json:"system_id"`
}

func (s *Service) IngestLegacyData(ctx context.Context, req IngestRequest) (*saga.Result, error) {
	if req.FileName == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "file_name is required")
	}
	if len(req.Payload) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "payload is required")
	}
	return s.run(ctx, PipelineIngest, saga.RunContext{
		keyFileName: req.FileName,
		keyPayload:  base64.StdEncoding.EncodeToString(req.Payload),
		keyWave:     req.Wave,
	})
}

func (s *Service) MapToCanonical(ctx context.Context, req MapRequest) (*saga.Result, error) {
	if req.RecordsDoc == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "records_doc is required; run ingest first")
	}
	if req.SchemaID == "" && req.FileID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "schema_id or file_id is required")
	}
	return s.run(ctx, PipelineMap, saga.RunContext{
		keyRecordsDoc:    req.RecordsDoc,
		keyFileID:        req.FileID,
		keySchemaID:      req.SchemaID,
		keySchemaVersion: req.SchemaVersion,
	})
}

func (s *Service) RoutePolicies(ctx context.Context, req RouteRequest) (*saga.Result, error) {
	if req.CanonicalDoc == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "canonical_doc is required")
	}
	return s.run(ctx, PipelineRoute, saga.RunContext{
		keyCanonicalDoc: req.CanonicalDoc,
		keyWave:         req.Wave,
		keySystemID:     req.SystemID,
	})
}

// run starts one pipeline execution under a fresh saga id. Step failures come
// back inside the Result; the error return is reserved for saga bookkeeping.
func (s *Service) run(ctx context.Context, pipeline string, rc saga.RunContext) (*saga.Result, error) {
	coord := s.coordinators[pipeline]
	sagaID := uuid.NewString()
	rc[keyRunID] = sagaID

	if s.metrics != nil {
		s.metrics.SagasStarted.WithLabelValues(pipeline).Inc()
	}
	start := time.Now()
	res, err := coord.Execute(ctx, sagaID, rc)
	if err != nil {
		return nil, err
	}

	outcome := "completed"
	if !res.Success {
		outcome = "compensated"
		if !res.Compensated {
			outcome = "failed"
		}
		if s.metrics != nil {
			s.metrics.SagasCompensated.WithLabelValues(pipeline).Inc()
		}
		s.logger.WarnContext(ctx, "pipeline rolled back",
			"pipeline", pipeline,
			"saga_id", sagaID,
			"failed_step", res.FailedStep,
			"error", res.Error,
		)
	}
	if s.metrics != nil {
		s.metrics.PipelineDuration.WithLabelValues(pipeline, outcome).Observe(time.Since(start).Seconds())
	}
	return res, nil
}

func (s *Service) GetSaga(ctx context.Context, sagaID string) (*saga.State, error) {
	state, err := s.sagas.Get(ctx, sagaID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "saga %s not found", sagaID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load saga state")
	}
	return state, nil
}

func (s *Service) ListSagas(ctx context.Context, filter saga.Filter) ([]*saga.State, error) {
	return s.sagas.List(ctx, filter)
}

// Resume retries a failed or compensated saga from the beginning with its
// original input.
func (s *Service) Resume(ctx context.Context, sagaID string) (*saga.Result, error) {
	coord, err := s.coordinatorFor(ctx, sagaID)
	if err != nil {
		return nil, err
	}
	return coord.Resume(ctx, sagaID)
}

// CompensateMilestone replays one compensation handler independently of its
// original run.
func (s *Service) CompensateMilestone(ctx context.Context, sagaID, milestoneID string) error {
	coord, err := s.coordinatorFor(ctx, sagaID)
	if err != nil {
		return err
	}
	return coord.CompensateMilestone(ctx, sagaID, milestoneID)
}

func (s *Service) coordinatorFor(ctx context.Context, sagaID string) (*saga.Coordinator, error) {
	state, err := s.GetSaga(ctx, sagaID)
	if err != nil {
		return nil, err
	}
	coord, ok := s.coordinators[state.Name]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeInternal, "saga %s belongs to unknown pipeline %s", sagaID, state.Name)
	}
	return coord, nil
}

// Package service implements the policy location registry and its migration
// state machine. All mutations go through RegisterPolicy and
// UpdateMigrationStatus; both are append-only.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	registrymetrics "policybridge/internal/registry/metrics"
	"policybridge/internal/registry/models"
	"policybridge/internal/registry/store"
	dErrors "policybridge/pkg/domain-errors"
	"policybridge/pkg/platform/sentinel"
	"policybridge/pkg/requestcontext"
)

type Service struct {
	store   store.Store
	logger  *slog.Logger
	metrics *registrymetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *registrymetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(st store.Store, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("registry store is required")
	}
	svc := &Service{store: st, logger: slog.Default()}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// RegisterPolicy records a sighting of a policy in a system. Idempotent in
// the append sense: every call appends a location entry and overwrites the
// current location; nothing is ever rewritten or removed.
func (s *Service) RegisterPolicy(ctx context.Context, id string, loc models.Location, systemID string, metadata map[string]string) (*models.PolicyRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "policy id is required")
	}
	if !loc.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "invalid location %q", loc)
	}

	rec, err := s.store.RegisterEntry(ctx, id, models.LocationEntry{
		Location:  loc,
		SystemID:  systemID,
		Timestamp: requestcontext.Now(ctx),
		Metadata:  metadata,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register policy")
	}

	if s.metrics != nil {
		s.metrics.PoliciesRegistered.Inc()
	}
	s.logger.InfoContext(ctx, "policy registered",
		"policy_id", id,
		"location", loc.String(),
		"system_id", systemID,
	)
	return rec, nil
}

// UpdateMigrationStatus applies a status transition. Illegal transitions are
// rejected without touching the record. Statuses that drive location
// (in_progress, completed, rolled_back) also append a forced location entry.
func (s *Service) UpdateMigrationStatus(ctx context.Context, id string, status models.MigrationStatus, waveID, details string) (*models.PolicyRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "policy id is required")
	}
	if !status.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "invalid migration status %q", status)
	}

	now := requestcontext.Now(ctx)
	rec, err := s.store.Execute(ctx, id,
		func(rec *models.PolicyRecord) error {
			if rec.MigrationStatus == status {
				// Re-applying the current status is a no-op request, not an
				// error; validate_migration relies on this for idempotency.
				return sentinel.ErrAlreadyApplied
			}
			if !rec.MigrationStatus.CanTransition(status) {
				return sentinel.ErrInvalidState
			}
			return nil
		},
		func(rec *models.PolicyRecord) {
			rec.ApplyStatus(models.StatusEntry{
				Status:    status,
				WaveID:    waveID,
				Details:   details,
				Timestamp: now,
			})
		},
	)
	switch {
	case errors.Is(err, sentinel.ErrAlreadyApplied):
		return s.GetPolicyLocation(ctx, id)
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Newf(dErrors.CodeNotFound, "policy %s is not registered", id)
	case errors.Is(err, sentinel.ErrInvalidState):
		if s.metrics != nil {
			s.metrics.IllegalTransitions.Inc()
		}
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "illegal transition to %s", status)
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update migration status")
	}

	if s.metrics != nil {
		s.metrics.StatusTransitions.WithLabelValues(status.String()).Inc()
	}
	s.logger.InfoContext(ctx, "migration status updated",
		"policy_id", id,
		"status", status.String(),
		"location", rec.CurrentLocation.String(),
		"wave_id", waveID,
	)
	return rec, nil
}

// GetPolicyLocation returns the full history plus current state. Unknown ids
// are a NotFound condition, never an empty record.
func (s *Service) GetPolicyLocation(ctx context.Context, id string) (*models.PolicyRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "policy id is required")
	}
	rec, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "policy %s is not registered", id)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load policy")
	}
	return rec, nil
}

// GetPoliciesByLocation lists records currently in loc.
func (s *Service) GetPoliciesByLocation(ctx context.Context, loc models.Location) ([]*models.PolicyRecord, error) {
	if !loc.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "invalid location %q", loc)
	}
	recs, err := s.store.ListByLocation(ctx, loc)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list policies")
	}
	return recs, nil
}

// ListByIDs exposes the filtered read the reconciliation engine runs on.
func (s *Service) ListByIDs(ctx context.Context, ids []string) ([]*models.PolicyRecord, error) {
	recs, err := s.store.ListByIDs(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list policies")
	}
	return recs, nil
}

// All returns the whole registry, for unfiltered reconciliation.
func (s *Service) All(ctx context.Context) ([]*models.PolicyRecord, error) {
	recs, err := s.store.All(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list policies")
	}
	return recs, nil
}

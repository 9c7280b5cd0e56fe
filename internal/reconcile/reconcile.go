// Package reconcile compares registered policy presence across two systems.
// It is a point-in-time read over the location registry: it never queries the
// live systems and never repairs what it finds, so its accuracy is bounded by
// how faithfully register_policy has been called.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"policybridge/internal/registry/models"
	dErrors "policybridge/pkg/domain-errors"
	"policybridge/pkg/platform/sentinel"
	pstrings "policybridge/pkg/platform/strings"
	"policybridge/pkg/requestcontext"
)

// Discrepancy flags a record present in exactly one of the two systems.
type Discrepancy struct {
	PolicyID  string `json:"policy_id"`
	PresentIn string `json:"present_in"`
	MissingIn string `json:"missing_in"`
}

// Result partitions the inspected ids into four disjoint sets. Every
// inspected id appears in exactly one partition.
type Result struct {
	SystemA       string        `json:"system_a"`
	SystemB       string        `json:"system_b"`
	InBoth        []string      `json:"in_both"`
	InAOnly       []string      `json:"in_a_only"`
	InBOnly       []string      `json:"in_b_only"`
	InNeither     []string      `json:"in_neither"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	CheckedAt     time.Time     `json:"checked_at"`
}

// Total is the number of inspected records.
func (r *Result) Total() int {
	return len(r.InBoth) + len(r.InAOnly) + len(r.InBOnly) + len(r.InNeither)
}

// Registry is the slice of the registry service the engine reads.
type Registry interface {
	ListByIDs(ctx context.Context, ids []string) ([]*models.PolicyRecord, error)
	All(ctx context.Context) ([]*models.PolicyRecord, error)
}

type Engine struct {
	registry Registry
	logger   *slog.Logger
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func New(registry Registry, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, errors.New("reconcile: registry is required")
	}
	e := &Engine{registry: registry, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Reconcile partitions the registry by presence in systemA and systemB.
// Presence means any LocationEntry of the record names that system id. With
// ids given, only those records are inspected; ids the registry has never
// seen fall into the in_neither partition. Without ids, the whole registry
// is inspected.
func (e *Engine) Reconcile(ctx context.Context, systemA, systemB string, ids []string) (*Result, error) {
	if systemA == "" || systemB == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "both system ids are required")
	}
	if systemA == systemB {
		return nil, dErrors.New(dErrors.CodeBadRequest, "system ids must differ")
	}

	ids = pstrings.DedupeAndTrim(ids)

	var (
		records []*models.PolicyRecord
		err     error
	)
	if len(ids) > 0 {
		records, err = e.registry.ListByIDs(ctx, ids)
	} else {
		records, err = e.registry.All(ctx)
	}
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list policy records")
	}

	byID := make(map[string]*models.PolicyRecord, len(records))
	inspect := make([]string, 0, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
		inspect = append(inspect, rec.ID)
	}
	if len(ids) > 0 {
		// The filter decides the inspected set; unregistered ids are
		// still accounted for, in the in_neither partition.
		inspect = ids
	}

	result := &Result{
		SystemA:   systemA,
		SystemB:   systemB,
		CheckedAt: requestcontext.Now(ctx),
	}
	for _, id := range inspect {
		rec := byID[id]
		inA := rec != nil && rec.SeenIn(systemA)
		inB := rec != nil && rec.SeenIn(systemB)
		switch {
		case inA && inB:
			result.InBoth = append(result.InBoth, id)
		case inA:
			result.InAOnly = append(result.InAOnly, id)
			result.Discrepancies = append(result.Discrepancies, Discrepancy{
				PolicyID: id, PresentIn: systemA, MissingIn: systemB,
			})
		case inB:
			result.InBOnly = append(result.InBOnly, id)
			result.Discrepancies = append(result.Discrepancies, Discrepancy{
				PolicyID: id, PresentIn: systemB, MissingIn: systemA,
			})
		default:
			result.InNeither = append(result.InNeither, id)
		}
	}

	e.logger.InfoContext(ctx, "reconciliation complete",
		"system_a", systemA,
		"system_b", systemB,
		"inspected", result.Total(),
		"discrepancies", len(result.Discrepancies),
	)
	return result, nil
}

// Package validation checks completed migrations against an ordered rule
// list and promotes passing records to the validated status. Rules read the
// policy registry only; validation never touches external systems.
package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"policybridge/internal/registry/models"
	"policybridge/internal/validation/metrics"
	dErrors "policybridge/pkg/domain-errors"
)

// Kind classifies what a rule inspects.
type Kind string

const (
	KindLocationCheck Kind = "location_check"
	KindStatusCheck   Kind = "status_check"
	// KindDataIntegrity rules compare fields across systems. There is no
	// built-in checker; one must be registered per rule name.
	KindDataIntegrity Kind = "data_integrity"
)

// Rule is one ordered check. Expect holds the required location or status
// value for the built-in kinds; data_integrity rules ignore it.
type Rule struct {
	Name   string `json:"name"`
	Kind   Kind   `json:"kind"`
	Expect string `json:"expect,omitempty"`
}

// RuleResult is the outcome of one rule.
type RuleResult struct {
	Description string `json:"description"`
	Kind        Kind   `json:"kind"`
	Passed      bool   `json:"passed"`
	Details     string `json:"details,omitempty"`
}

// Report is the outcome of one validate_migration call. Passed is the
// conjunction of all rule results.
type Report struct {
	PolicyID         string       `json:"policy_id"`
	Passed           bool         `json:"validation_passed"`
	Status           string       `json:"status"`
	Results          []RuleResult `json:"results"`
	AlreadyValidated bool         `json:"already_validated,omitempty"`
}

// IntegrityChecker implements one data_integrity rule. Returning an error
// fails the rule with the error text as details.
type IntegrityChecker interface {
	Check(ctx context.Context, record *models.PolicyRecord) error
}

// Registry is the slice of the registry service the engine needs.
type Registry interface {
	GetPolicyLocation(ctx context.Context, id string) (*models.PolicyRecord, error)
	UpdateMigrationStatus(ctx context.Context, id string, status models.MigrationStatus, waveID, details string) (*models.PolicyRecord, error)
}

// DefaultRules is the standard post-migration check: the record must live in
// the new system and its migration must be completed.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "record_in_new_system", Kind: KindLocationCheck, Expect: models.LocationNewSystem.String()},
		{Name: "migration_completed", Kind: KindStatusCheck, Expect: models.StatusCompleted.String()},
	}
}

type Engine struct {
	registry Registry
	rules    []Rule
	checkers map[string]IntegrityChecker
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithRules replaces the default rule list.
func WithRules(rules []Rule) Option {
	return func(e *Engine) { e.rules = rules }
}

func New(registry Registry, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, errors.New("validation: registry is required")
	}
	e := &Engine{
		registry: registry,
		rules:    DefaultRules(),
		checkers: make(map[string]IntegrityChecker),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// RegisterIntegrityChecker binds a checker to the data_integrity rule with
// the same name.
func (e *Engine) RegisterIntegrityChecker(name string, c IntegrityChecker) {
	e.checkers[name] = c
}

// ValidateMigration runs the rule list against one record. Rule failures are
// reported, not returned as errors; the error return is reserved for unknown
// ids and infrastructure faults. A record that already passed stays
// validated and the call reports success again.
func (e *Engine) ValidateMigration(ctx context.Context, id string, rules []Rule) (*Report, error) {
	record, err := e.registry.GetPolicyLocation(ctx, id)
	if err != nil {
		return nil, err
	}

	if record.MigrationStatus == models.StatusValidated {
		return &Report{
			PolicyID:         id,
			Passed:           true,
			Status:           record.MigrationStatus.String(),
			AlreadyValidated: true,
		}, nil
	}

	if len(rules) == 0 {
		rules = e.rules
	}

	report := &Report{PolicyID: id, Passed: true, Status: record.MigrationStatus.String()}
	for _, rule := range rules {
		result := e.evaluate(ctx, rule, record)
		if !result.Passed {
			report.Passed = false
			if e.metrics != nil {
				e.metrics.RuleFailures.WithLabelValues(string(rule.Kind)).Inc()
			}
		}
		report.Results = append(report.Results, result)
	}

	if !report.Passed {
		if e.metrics != nil {
			e.metrics.ValidationsFailed.Inc()
		}
		e.logger.InfoContext(ctx, "validation failed", "policy_id", id, "rules", len(rules))
		return report, nil
	}

	updated, err := e.registry.UpdateMigrationStatus(ctx, id, models.StatusValidated, record.WaveID, "validation passed")
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "promote policy "+id+" to validated")
	}
	report.Status = updated.MigrationStatus.String()
	if e.metrics != nil {
		e.metrics.ValidationsPassed.Inc()
	}
	e.logger.InfoContext(ctx, "migration validated", "policy_id", id)
	return report, nil
}

func (e *Engine) evaluate(ctx context.Context, rule Rule, record *models.PolicyRecord) RuleResult {
	result := RuleResult{Description: rule.Name, Kind: rule.Kind}
	switch rule.Kind {
	case KindLocationCheck:
		result.Passed = record.CurrentLocation.String() == rule.Expect
		result.Details = fmt.Sprintf("current_location=%s expected=%s", record.CurrentLocation, rule.Expect)
	case KindStatusCheck:
		result.Passed = record.MigrationStatus.String() == rule.Expect
		result.Details = fmt.Sprintf("status=%s expected=%s", record.MigrationStatus, rule.Expect)
	case KindDataIntegrity:
		checker, ok := e.checkers[rule.Name]
		if !ok {
			result.Details = "no integrity checker registered for " + rule.Name
			return result
		}
		if err := checker.Check(ctx, record); err != nil {
			result.Details = err.Error()
			return result
		}
		result.Passed = true
	default:
		result.Details = "unknown rule kind " + string(rule.Kind)
	}
	return result
}

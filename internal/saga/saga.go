// Package saga coordinates multi-step migration transactions.
//
// A saga is an ordered list of forward steps, each paired with an idempotent
// compensating handler. Every forward step and every compensation is guarded
// by a write-ahead intent record: the WAL entry must be durable before the
// operation's side effects become visible. When a forward step fails, the
// coordinator invokes the compensations of all completed steps in reverse
// order. Retry of a failed saga is driven externally (Resume); neither the
// step loop nor the coordinator retries internally.
package saga

import (
	"context"
	"time"

	"policybridge/internal/wal"
	dErrors "policybridge/pkg/domain-errors"
)

// RunContext is the mutable scratch space a saga's steps share. Steps read
// what earlier steps produced (file ids, document ids) and add their own
// outputs. Values are strings so the context can travel inside WAL payloads.
type RunContext map[string]string

func (rc RunContext) clone() RunContext {
	cp := make(RunContext, len(rc))
	for k, v := range rc {
		cp[k] = v
	}
	return cp
}

// Step is one forward operation plus its compensation. Execute performs the
// step against external collaborators. Compensate semantically undoes it and
// must be safe to invoke more than once and on already-compensated state; it
// receives the milestone recorded when the forward step committed, so it can
// be replayed independently of the original call.
type Step struct {
	Name string

	// Namespace and Target select where the step's WAL intent entries go.
	// Lifecycle is the retry policy recorded for the external replay
	// consumer; zero means wal.DefaultLifecycle.
	Namespace string
	Target    string
	Lifecycle wal.Lifecycle

	Execute    func(ctx context.Context, rc RunContext) error
	Compensate func(ctx context.Context, m Milestone) error
}

// Milestone records one committed forward step. The triple
// (saga id, milestone id, context) addresses its compensation.
type Milestone struct {
	ID          string     `json:"id"`
	SagaID      string     `json:"saga_id"`
	Step        string     `json:"step"`
	Context     RunContext `json:"context"`
	CompletedAt time.Time  `json:"completed_at"`
}

// Status is the coordinator-visible saga state.
//
// Transitions:
//
//	pending → running → completed
//	                 ↘ compensating → compensated
//	                                ↘ failed
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	// StatusCompleted means every forward step committed.
	StatusCompleted Status = "completed"
	// StatusCompensating means a forward step failed and rollback is running.
	StatusCompensating Status = "compensating"
	// StatusCompensated means rollback finished cleanly.
	StatusCompensated Status = "compensated"
	// StatusFailed means a compensation itself failed; the WAL retry policy
	// owns re-delivery of the failed handlers.
	StatusFailed Status = "failed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusCompensating, StatusCompensated, StatusFailed:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", dErrors.Newf(dErrors.CodeBadRequest, "invalid saga status %q", s)
	}
	return status, nil
}

// State is the persisted view of one saga instance.
type State struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Status        Status      `json:"status"`
	CurrentStep   int         `json:"current_step"`
	Milestones    []Milestone `json:"milestones"`
	Context       RunContext  `json:"context"`
	Error         string      `json:"error,omitempty"`
	FailedStep    string      `json:"failed_step,omitempty"`
	StartedAt     time.Time   `json:"started_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
	LastUpdatedAt time.Time   `json:"last_updated_at"`
}

// Store persists saga state after each step so failed sagas stay visible and
// resumable. Implementations must be safe for concurrent use.
type Store interface {
	Create(ctx context.Context, state *State) error
	Get(ctx context.Context, id string) (*State, error)
	Update(ctx context.Context, state *State) error
	List(ctx context.Context, filter Filter) ([]*State, error)
}

// Filter selects sagas for List. Zero value matches everything.
type Filter struct {
	Name     string
	Statuses []Status
	Limit    int
}

// Result is the structured outcome of a saga run. Step failures surface here,
// never as raw faults past the coordinator boundary.
type Result struct {
	Success     bool       `json:"success"`
	SagaID      string     `json:"saga_id"`
	Context     RunContext `json:"context,omitempty"`
	FailedStep  string     `json:"failed_step,omitempty"`
	Error       string     `json:"error,omitempty"`
	Compensated bool       `json:"compensated,omitempty"`
}

package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"policybridge/internal/wal"
	dErrors "policybridge/pkg/domain-errors"
	"policybridge/pkg/platform/sentinel"
	"policybridge/pkg/requestcontext"
)

// Coordinator owns one saga definition: the ordered step list and the
// per-step compensation mapping. It executes forward steps and, on failure,
// unwinds completed steps in reverse order, each side WAL-logged.
type Coordinator struct {
	name   string
	steps  []Step
	store  Store
	wal    wal.Sink
	logger *slog.Logger
}

type Option func(*Coordinator)

func WithStore(store Store) Option {
	return func(c *Coordinator) { c.store = store }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// New builds a coordinator. The WAL sink is mandatory: no step runs without
// a durable intent record.
func New(name string, sink wal.Sink, steps []Step, opts ...Option) (*Coordinator, error) {
	if sink == nil {
		return nil, fmt.Errorf("wal sink is required")
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("saga %s has no steps", name)
	}
	c := &Coordinator{
		name:   name,
		steps:  steps,
		store:  NewMemoryStore(),
		wal:    sink,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("saga", name)
	return c, nil
}

func (c *Coordinator) Name() string { return c.name }

// Execute runs the saga to completion or through rollback. The returned
// Result is always non-nil on a nil error; errors are reserved for saga
// bookkeeping failures (state store unreachable), never for step failures.
func (c *Coordinator) Execute(ctx context.Context, sagaID string, input RunContext) (*Result, error) {
	if sagaID == "" {
		sagaID = uuid.NewString()
	}
	rc := input.clone()
	if rc == nil {
		rc = RunContext{}
	}

	state := &State{
		ID:            sagaID,
		Name:          c.name,
		Status:        StatusRunning,
		Context:       rc,
		StartedAt:     time.Now(),
		LastUpdatedAt: time.Now(),
	}
	if err := c.store.Create(ctx, state); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create saga state")
	}

	for i, step := range c.steps {
		state.CurrentStep = i
		c.logger.DebugContext(ctx, "executing step", "saga_id", sagaID, "step", step.Name, "step_index", i)

		milestone, err := c.runStep(ctx, sagaID, step, rc)
		if err != nil {
			c.logger.ErrorContext(ctx, "step failed",
				"saga_id", sagaID,
				"step", step.Name,
				"error", err,
			)
			state.Status = StatusCompensating
			state.Error = err.Error()
			state.FailedStep = step.Name
			c.persist(ctx, state)

			compErr := c.unwind(ctx, state)
			now := time.Now()
			state.CompletedAt = &now
			if compErr != nil {
				state.Status = StatusFailed
			} else {
				state.Status = StatusCompensated
			}
			c.persist(ctx, state)

			return &Result{
				Success:     false,
				SagaID:      sagaID,
				Context:     rc,
				FailedStep:  step.Name,
				Error:       dErrors.MessageOf(err),
				Compensated: compErr == nil,
			}, nil
		}

		state.Milestones = append(state.Milestones, milestone)
		state.Context = rc
		c.persist(ctx, state)
	}

	now := time.Now()
	state.Status = StatusCompleted
	state.CompletedAt = &now
	c.persist(ctx, state)

	c.logger.InfoContext(ctx, "saga completed", "saga_id", sagaID, "steps", len(c.steps))
	return &Result{Success: true, SagaID: sagaID, Context: rc}, nil
}

// runStep executes one forward step: durable intent first, then the side
// effect, then the milestone. A WAL failure means the step never runs (fail
// closed). Step failures come back as coded errors, never as panics.
func (c *Coordinator) runStep(ctx context.Context, sagaID string, step Step, rc RunContext) (Milestone, error) {
	lifecycle := step.Lifecycle
	if lifecycle == (wal.Lifecycle{}) {
		lifecycle = wal.DefaultLifecycle
	}
	_, err := c.wal.Record(ctx, wal.Entry{
		Namespace: step.Namespace,
		SagaID:    sagaID,
		Milestone: step.Name,
		Payload:   rc.clone(),
		Target:    step.Target,
		Lifecycle: lifecycle,
		ActorID:   requestcontext.ActorID(ctx),
	})
	if err != nil {
		return Milestone{}, dErrors.Wrap(err, dErrors.CodeInternal, "wal record for step "+step.Name+" failed")
	}

	if err := c.invoke(ctx, func() error { return step.Execute(ctx, rc) }); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnavailable) {
			return Milestone{}, err
		}
		return Milestone{}, dErrors.Wrap(err, dErrors.CodeExternal, "step "+step.Name+" failed")
	}

	return Milestone{
		ID:          uuid.NewString(),
		SagaID:      sagaID,
		Step:        step.Name,
		Context:     rc.clone(),
		CompletedAt: time.Now(),
	}, nil
}

// unwind compensates completed milestones in reverse order. Each handler is
// WAL-logged before it runs. A failed compensation is logged and left to the
// WAL retry policy; unwinding continues with the remaining steps so one bad
// handler never strands the rest.
func (c *Coordinator) unwind(ctx context.Context, state *State) error {
	var failed []error
	for i := len(state.Milestones) - 1; i >= 0; i-- {
		m := state.Milestones[i]
		if err := c.compensate(ctx, m); err != nil {
			c.logger.ErrorContext(ctx, "compensation failed",
				"saga_id", state.ID,
				"milestone_id", m.ID,
				"step", m.Step,
				"error", err,
			)
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return dErrors.Wrap(errors.Join(failed...), dErrors.CodeCompensation,
			fmt.Sprintf("%d of %d compensations failed", len(failed), len(state.Milestones)))
	}
	return nil
}

// compensate runs one compensation handler, addressed by its milestone. The
// handler's intent is WAL-logged first so a crashed rollback can be replayed
// from the log.
func (c *Coordinator) compensate(ctx context.Context, m Milestone) error {
	step, ok := c.stepByName(m.Step)
	if !ok {
		return dErrors.Newf(dErrors.CodeCompensation, "no step named %s in saga %s", m.Step, c.name)
	}
	if step.Compensate == nil {
		return nil
	}

	lifecycle := step.Lifecycle
	if lifecycle == (wal.Lifecycle{}) {
		lifecycle = wal.DefaultLifecycle
	}
	_, err := c.wal.Record(ctx, wal.Entry{
		Namespace: step.Namespace + ".compensate",
		SagaID:    m.SagaID,
		Milestone: m.ID,
		Payload:   m.Context.clone(),
		Target:    step.Target,
		Lifecycle: lifecycle,
		ActorID:   requestcontext.ActorID(ctx),
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeCompensation, "wal record for compensation of "+m.Step+" failed")
	}

	if err := c.invoke(ctx, func() error { return step.Compensate(ctx, m) }); err != nil {
		return dErrors.Wrap(err, dErrors.CodeCompensation, "compensation of "+m.Step+" failed")
	}

	c.logger.InfoContext(ctx, "milestone compensated",
		"saga_id", m.SagaID,
		"milestone_id", m.ID,
		"step", m.Step,
	)
	return nil
}

// CompensateMilestone replays a single compensation independently of the
// original run, addressed by (saga id, milestone id). Handlers are
// idempotent, so replaying an already-undone milestone succeeds.
func (c *Coordinator) CompensateMilestone(ctx context.Context, sagaID, milestoneID string) error {
	state, err := c.store.Get(ctx, sagaID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "saga %s not found", sagaID)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "load saga state")
	}
	for _, m := range state.Milestones {
		if m.ID == milestoneID {
			return c.compensate(ctx, m)
		}
	}
	return dErrors.Newf(dErrors.CodeNotFound, "milestone %s not found in saga %s", milestoneID, sagaID)
}

// Resume re-executes a compensated or failed saga from the beginning with
// its original input. Retry is externally driven: something decided the
// underlying fault is fixed.
func (c *Coordinator) Resume(ctx context.Context, sagaID string) (*Result, error) {
	state, err := c.store.Get(ctx, sagaID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "saga %s not found", sagaID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load saga state")
	}
	if state.Status != StatusFailed && state.Status != StatusCompensated {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "saga %s is %s, not resumable", sagaID, state.Status)
	}
	return c.Execute(ctx, sagaID+":retry:"+uuid.NewString()[:8], state.Context)
}

// invoke shields the coordinator from panicking steps; a panic becomes an
// ordinary error result.
func (c *Coordinator) invoke(ctx context.Context, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.ErrorContext(ctx, "panic in saga operation", "panic", rec)
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn()
}

func (c *Coordinator) stepByName(name string) (Step, bool) {
	for _, s := range c.steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}

func (c *Coordinator) persist(ctx context.Context, state *State) {
	state.LastUpdatedAt = time.Now()
	if err := c.store.Update(ctx, state); err != nil {
		c.logger.ErrorContext(ctx, "failed to update saga state", "saga_id", state.ID, "error", err)
	}
}

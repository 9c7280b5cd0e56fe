// Package wal implements the write-ahead intent log that guards every saga
// step and compensation.
//
// An entry is recorded durably before the guarded operation runs. If the
// record fails the operation must not run (fail closed). The writer never
// retries anything itself; the lifecycle fields describe how an external
// replay consumer should retry deliveries to the entry's target.
package wal

import (
	"context"
	"time"
)

// Lifecycle is the retry policy an external replay consumer applies when
// re-delivering this entry to its target. The writer only records it.
type Lifecycle struct {
	RetryCount int           `json:"retry_count"`
	Delay      time.Duration `json:"delay"`
	Backoff    float64       `json:"backoff"`
}

// DefaultLifecycle is used when a caller does not specify a policy.
var DefaultLifecycle = Lifecycle{RetryCount: 3, Delay: 5 * time.Second, Backoff: 2.0}

// Entry is one append-only intent record. Sequence is assigned by the store
// and is strictly increasing per process (memory) or globally (postgres).
type Entry struct {
	ID        string            `json:"id"`
	Namespace string            `json:"namespace"`
	SagaID    string            `json:"saga_id,omitempty"`
	Milestone string            `json:"milestone,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
	// Target is the destination queue an external consumer replays this
	// entry to on retry.
	Target    string    `json:"target"`
	Lifecycle Lifecycle `json:"lifecycle"`
	ActorID   string    `json:"actor_id,omitempty"`
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink records intent entries. Record must complete durably before the
// caller proceeds; on error the guarded operation must not run.
type Sink interface {
	Record(ctx context.Context, entry Entry) (entryID string, err error)
}

// Store is a Sink that also supports the reads the replay consumer and
// reconciliation passes need.
type Store interface {
	Sink

	// ListByTarget returns entries destined for target in sequence order.
	ListByTarget(ctx context.Context, target string) ([]Entry, error)

	// ListBySaga returns every entry recorded under a saga id, in sequence
	// order. Used to resolve orphaned intents after a crash.
	ListBySaga(ctx context.Context, sagaID string) ([]Entry, error)
}

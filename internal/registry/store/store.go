// Package store persists policy records for the location registry.
//
// Two implementations exist: an in-memory store for tests and single-process
// runs, and a Postgres store for production. Both serialize concurrent
// mutations of the same record id; the memory store with a per-record lock,
// Postgres with SELECT ... FOR UPDATE.
package store

import (
	"context"

	"policybridge/internal/registry/models"
)

// Store is the registry's persistence boundary. Implementations return
// sentinel.ErrNotFound for unknown ids and must be safe for concurrent use.
type Store interface {
	// FindByID returns a copy of the record.
	FindByID(ctx context.Context, id string) (*models.PolicyRecord, error)

	// RegisterEntry appends a location entry, creating the record on first
	// sight. Always appends; last write wins by registration order.
	RegisterEntry(ctx context.Context, id string, entry models.LocationEntry) (*models.PolicyRecord, error)

	// Execute atomically runs validate then mutate on an existing record
	// while holding the record's lock. The mutation is not persisted if
	// validate returns an error.
	Execute(ctx context.Context, id string,
		validate func(*models.PolicyRecord) error,
		mutate func(*models.PolicyRecord)) (*models.PolicyRecord, error)

	// ListByLocation returns records whose current location matches.
	ListByLocation(ctx context.Context, loc models.Location) ([]*models.PolicyRecord, error)

	// ListByIDs returns the records that exist among ids; unknown ids are
	// simply absent from the result.
	ListByIDs(ctx context.Context, ids []string) ([]*models.PolicyRecord, error)

	// All returns every record in the registry.
	All(ctx context.Context) ([]*models.PolicyRecord, error)
}

package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record, saga, or WAL entry does not exist in store
// - ErrConflict: concurrent update lost, or duplicate creation attempted
// - ErrInvalidState: entity in wrong state for requested transition
// - ErrAlreadyApplied: idempotent operation has already taken effect
// - ErrUnavailable: store or collaborator temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrInvalidState   = errors.New("invalid state")
	ErrAlreadyApplied = errors.New("already applied")
	ErrUnavailable    = errors.New("unavailable")
)

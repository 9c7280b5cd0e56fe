// Package models defines the policy location registry's domain types: where a
// policy record currently lives, its migration status, and the legal
// transitions between statuses.
package models

import (
	"time"

	dErrors "policybridge/pkg/domain-errors"
)

// Location identifies which system currently holds a policy record.
type Location string

const (
	LocationLegacySystem Location = "legacy_system"
	LocationNewSystem    Location = "new_system"
	LocationInTransit    Location = "in_transit"
	LocationCoexistence  Location = "coexistence"
	// LocationUnknown is the default on first sight of a record.
	LocationUnknown Location = "unknown"
)

// IsValid checks if the location is one of the supported enum values.
func (l Location) IsValid() bool {
	switch l {
	case LocationLegacySystem, LocationNewSystem, LocationInTransit, LocationCoexistence, LocationUnknown:
		return true
	}
	return false
}

func (l Location) String() string { return string(l) }

// ParseLocation creates a Location from a string, validating it.
func ParseLocation(s string) (Location, error) {
	if s == "" {
		return LocationUnknown, nil
	}
	l := Location(s)
	if !l.IsValid() {
		return "", dErrors.Newf(dErrors.CodeBadRequest, "invalid location %q", s)
	}
	return l, nil
}

// MigrationStatus tracks a policy record's progress through migration.
type MigrationStatus string

const (
	StatusNotStarted MigrationStatus = "not_started"
	StatusInProgress MigrationStatus = "in_progress"
	StatusCompleted  MigrationStatus = "completed"
	StatusFailed     MigrationStatus = "failed"
	StatusRolledBack MigrationStatus = "rolled_back"
	StatusValidated  MigrationStatus = "validated"
)

// IsValid checks if the status is one of the supported enum values.
func (s MigrationStatus) IsValid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusFailed, StatusRolledBack, StatusValidated:
		return true
	}
	return false
}

func (s MigrationStatus) String() string { return string(s) }

// ParseMigrationStatus creates a MigrationStatus from a string, validating it.
func ParseMigrationStatus(s string) (MigrationStatus, error) {
	status := MigrationStatus(s)
	if !status.IsValid() {
		return "", dErrors.Newf(dErrors.CodeBadRequest, "invalid migration status %q", s)
	}
	return status, nil
}

// legalTransitions is the status state machine. rolled_back and failed may
// return to in_progress for an externally-driven retry.
var legalTransitions = map[MigrationStatus][]MigrationStatus{
	StatusNotStarted: {StatusInProgress},
	StatusInProgress: {StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusValidated},
	StatusFailed:     {StatusRolledBack, StatusInProgress},
	StatusRolledBack: {StatusInProgress},
	StatusValidated:  {},
}

// CanTransition reports whether moving from s to next is legal.
func (s MigrationStatus) CanTransition(next MigrationStatus) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// LocationFor returns the forced location for statuses that drive location,
// and ok=false for statuses that leave it untouched. Status drives location
// rather than the two being independently settable; this removes a class of
// operator error at the cost of flexibility.
func (s MigrationStatus) LocationFor() (Location, bool) {
	switch s {
	case StatusCompleted:
		return LocationNewSystem, true
	case StatusInProgress:
		return LocationInTransit, true
	case StatusRolledBack:
		return LocationLegacySystem, true
	}
	return "", false
}

// LocationEntry is one step in a record's location history. Entries are
// append-only; the registry never rewrites history.
type LocationEntry struct {
	Location  Location          `json:"location"`
	SystemID  string            `json:"system_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// StatusEntry is one step in a record's status history.
type StatusEntry struct {
	Status    MigrationStatus `json:"status"`
	WaveID    string          `json:"wave_id,omitempty"`
	Details   string          `json:"details,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// PolicyRecord is the registry's view of a single policy. Mutated only by
// appending location or status entries; current fields always mirror the most
// recently appended entry. Records are never hard-deleted.
type PolicyRecord struct {
	ID              string          `json:"id"`
	History         []LocationEntry `json:"history"`
	StatusHistory   []StatusEntry   `json:"status_history"`
	CurrentLocation Location        `json:"current_location"`
	CurrentSystemID string          `json:"current_system_id,omitempty"`
	MigrationStatus MigrationStatus `json:"migration_status"`
	WaveID          string          `json:"wave_id,omitempty"`
	StatusDetails   string          `json:"status_details,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewPolicyRecord creates a record with its first location entry. Status
// starts at not_started.
func NewPolicyRecord(id string, entry LocationEntry) *PolicyRecord {
	return &PolicyRecord{
		ID:              id,
		History:         []LocationEntry{entry},
		CurrentLocation: entry.Location,
		CurrentSystemID: entry.SystemID,
		MigrationStatus: StatusNotStarted,
		CreatedAt:       entry.Timestamp,
		UpdatedAt:       entry.Timestamp,
	}
}

// AppendLocation registers a new sighting of the record. Last write wins by
// registration order, not wall-clock.
func (r *PolicyRecord) AppendLocation(entry LocationEntry) {
	r.History = append(r.History, entry)
	r.CurrentLocation = entry.Location
	r.CurrentSystemID = entry.SystemID
	r.UpdatedAt = entry.Timestamp
}

// ApplyStatus appends a status entry and applies the status-drives-location
// side effect. Callers must have checked CanTransition first.
func (r *PolicyRecord) ApplyStatus(entry StatusEntry) {
	r.StatusHistory = append(r.StatusHistory, entry)
	r.MigrationStatus = entry.Status
	if entry.WaveID != "" {
		r.WaveID = entry.WaveID
	}
	r.StatusDetails = entry.Details
	r.UpdatedAt = entry.Timestamp

	if loc, forced := entry.Status.LocationFor(); forced {
		r.History = append(r.History, LocationEntry{
			Location:  loc,
			SystemID:  r.CurrentSystemID,
			Timestamp: entry.Timestamp,
			Metadata:  map[string]string{"reason": "status_" + entry.Status.String()},
		})
		r.CurrentLocation = loc
	}
}

// SeenIn reports whether any location entry was recorded under systemID.
// Reconciliation partitions are computed from this.
func (r *PolicyRecord) SeenIn(systemID string) bool {
	for _, e := range r.History {
		if e.SystemID == systemID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so stores can hand out records without aliasing
// their internal state.
func (r *PolicyRecord) Clone() *PolicyRecord {
	cp := *r
	cp.History = make([]LocationEntry, len(r.History))
	copy(cp.History, r.History)
	cp.StatusHistory = make([]StatusEntry, len(r.StatusHistory))
	copy(cp.StatusHistory, r.StatusHistory)
	for i, e := range r.History {
		if e.Metadata != nil {
			m := make(map[string]string, len(e.Metadata))
			for k, v := range e.Metadata {
				m[k] = v
			}
			cp.History[i].Metadata = m
		}
	}
	return &cp
}

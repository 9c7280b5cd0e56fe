package handler

import (
	"strings"

	"policybridge/internal/registry/models"
	dErrors "policybridge/pkg/domain-errors"
)

// RegisterRequest is the HTTP request body for POST /policies.
type RegisterRequest struct {
	ID       string            `json:"id"`
	Location string            `json:"location"`
	SystemID string            `json:"system_id,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	parsedLocation models.Location
}

func (r *RegisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		return dErrors.New(dErrors.CodeValidation, "id is required")
	}
	loc, err := models.ParseLocation(strings.TrimSpace(r.Location))
	if err != nil {
		return err
	}
	r.parsedLocation = loc
	return nil
}

func (r *RegisterRequest) ParsedLocation() models.Location { return r.parsedLocation }

// StatusRequest is the HTTP request body for POST /policies/{id}/status.
type StatusRequest struct {
	Status  string `json:"status"`
	WaveID  string `json:"wave_id,omitempty"`
	Details string `json:"details,omitempty"`

	parsedStatus models.MigrationStatus
}

func (r *StatusRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	status, err := models.ParseMigrationStatus(strings.TrimSpace(r.Status))
	if err != nil {
		return err
	}
	r.parsedStatus = status
	return nil
}

func (r *StatusRequest) ParsedStatus() models.MigrationStatus { return r.parsedStatus }

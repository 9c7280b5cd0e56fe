package handler

import (
	"strings"

	"policybridge/internal/migration"
	dErrors "policybridge/pkg/domain-errors"
)

// IngestRequest is the HTTP request body for POST /migration/ingest. Payload
// is base64 in JSON per encoding/json []byte handling.
type IngestRequest struct {
	FileName string `json:"file_name"`
	Payload  []byte `json:"payload"`
	Wave     string `json:"wave,omitempty"`
}

func (r *IngestRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.FileName = strings.TrimSpace(r.FileName)
	if r.FileName == "" {
		return dErrors.New(dErrors.CodeValidation, "file_name is required")
	}
	if len(r.Payload) == 0 {
		return dErrors.New(dErrors.CodeValidation, "payload is required")
	}
	return nil
}

func (r *IngestRequest) Domain() migration.IngestRequest {
	return migration.IngestRequest{FileName: r.FileName, Payload: r.Payload, Wave: r.Wave}
}

// MapRequest is the HTTP request body for POST /migration/map.
type MapRequest struct {
	RecordsDoc    string `json:"records_doc"`
	FileID        string `json:"file_id,omitempty"`
	SchemaID      string `json:"schema_id,omitempty"`
	SchemaVersion string `json:"schema_version,omitempty"`
}

func (r *MapRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.RecordsDoc = strings.TrimSpace(r.RecordsDoc)
	if r.RecordsDoc == "" {
		return dErrors.New(dErrors.CodeValidation, "records_doc is required")
	}
	if strings.TrimSpace(r.SchemaID) == "" && strings.TrimSpace(r.FileID) == "" {
		return dErrors.New(dErrors.CodeValidation, "schema_id or file_id is required")
	}
	return nil
}

func (r *MapRequest) Domain() migration.MapRequest {
	return migration.MapRequest{
		RecordsDoc:    r.RecordsDoc,
		FileID:        strings.TrimSpace(r.FileID),
		SchemaID:      strings.TrimSpace(r.SchemaID),
		SchemaVersion: strings.TrimSpace(r.SchemaVersion),
	}
}

// RouteRequest is the HTTP request body for POST /migration/route.
type RouteRequest struct {
	CanonicalDoc string `json:"canonical_doc"`
	Wave         string `json:"wave,omitempty"`
	SystemID     string `json:"system_id,omitempty"`
}

func (r *RouteRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.CanonicalDoc = strings.TrimSpace(r.CanonicalDoc)
	if r.CanonicalDoc == "" {
		return dErrors.New(dErrors.CodeValidation, "canonical_doc is required")
	}
	return nil
}

func (r *RouteRequest) Domain() migration.RouteRequest {
	return migration.RouteRequest{CanonicalDoc: r.CanonicalDoc, Wave: r.Wave, SystemID: r.SystemID}
}

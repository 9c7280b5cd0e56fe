// Package collab defines the external collaborator interfaces the migration
// pipelines call. The gateway treats all of them as black boxes: it never
// parses files, computes canonical schemas, or evaluates routing rules
// itself. Interfaces stay small so tests can stub quickly.
package collab

import (
	"context"
	"time"
)

// FileMetadata describes an object held by the content store.
type FileMetadata struct {
	FileID      string    `json:"file_id"`
	Name        string    `json:"name"`
	SizeBytes   int64     `json:"size_bytes"`
	ContentType string    `json:"content_type"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// ContentStore holds raw source files acquired from the legacy system.
type ContentStore interface {
	Upload(ctx context.Context, name string, data []byte) (FileMetadata, error)
	GetMetadata(ctx context.Context, fileID string) (FileMetadata, error)
	// Delete must be idempotent: deleting an absent file succeeds. The
	// ingest compensation handler relies on this.
	Delete(ctx context.Context, fileID string) error
}

// ParsedRecord is one business record extracted from a source file.
type ParsedRecord struct {
	PolicyID string            `json:"policy_id"`
	Fields   map[string]string `json:"fields"`
}

// FileParser turns a stored file into policy records.
type FileParser interface {
	Parse(ctx context.Context, fileID string) ([]ParsedRecord, error)
}

// SchemaMapper discovers source schemas and maps records into the canonical
// model.
type SchemaMapper interface {
	DiscoverSchema(ctx context.Context, fileID string) (SchemaRef, error)
	MapToCanonical(ctx context.Context, schema SchemaRef, records []ParsedRecord) ([]CanonicalRecord, error)
	ValidateAgainstModel(ctx context.Context, records []CanonicalRecord) error
}

// SchemaRef names a discovered source schema.
type SchemaRef struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}

// CanonicalRecord is a record expressed in the target, system-agnostic model.
type CanonicalRecord struct {
	PolicyID  string            `json:"policy_id"`
	Canonical map[string]string `json:"canonical"`
}

// RoutingDecision is the outcome of rule evaluation for one record.
type RoutingDecision struct {
	PolicyID    string `json:"policy_id"`
	RoutingKey  string `json:"routing_key"`
	Destination string `json:"destination"`
}

// RoutingEngine evaluates authored routing rules; the gateway never authors
// them.
type RoutingEngine interface {
	GetRoutingKey(ctx context.Context, record CanonicalRecord) (string, error)
	EvaluateRouting(ctx context.Context, key string) (RoutingDecision, error)
}

// DocumentStore persists pipeline artifacts (metadata, mappings, routing
// decisions) keyed by document id.
type DocumentStore interface {
	StoreDocument(ctx context.Context, docID string, doc map[string]any) error
	RetrieveDocument(ctx context.Context, docID string) (map[string]any, error)
	// DeleteDocument must be idempotent for compensation replay.
	DeleteDocument(ctx context.Context, docID string) error
}

// LineageEdge records data provenance for one completed step.
type LineageEdge struct {
	Source      string            `json:"source"`
	Operation   string            `json:"operation"`
	Destination string            `json:"destination"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// LineageRecorder tracks provenance edges.
type LineageRecorder interface {
	TrackLineage(ctx context.Context, edge LineageEdge) error
}

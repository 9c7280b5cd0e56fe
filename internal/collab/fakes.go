package collab

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"policybridge/pkg/platform/sentinel"
)

// Fake collaborators with deterministic data and a configurable latency to
// mimic real-world calls. Used by the default wiring and in tests; production
// deployments swap in real adapters through the resolver.

// FakeContentStore keeps uploads in memory. Delete is idempotent.
type FakeContentStore struct {
	Latency time.Duration

	mu    sync.Mutex
	files map[string]FileMetadata
}

func NewFakeContentStore() *FakeContentStore {
	return &FakeContentStore{files: make(map[string]FileMetadata)}
}

func (s *FakeContentStore) Upload(_ context.Context, name string, data []byte) (FileMetadata, error) {
	time.Sleep(s.Latency)
	meta := FileMetadata{
		FileID:      uuid.NewString(),
		Name:        name,
		SizeBytes:   int64(len(data)),
		ContentType: "application/octet-stream",
		UploadedAt:  time.Now(),
	}
	s.mu.Lock()
	s.files[meta.FileID] = meta
	s.mu.Unlock()
	return meta, nil
}

func (s *FakeContentStore) GetMetadata(_ context.Context, fileID string) (FileMetadata, error) {
	time.Sleep(s.Latency)
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.files[fileID]
	if !ok {
		return FileMetadata{}, sentinel.ErrNotFound
	}
	return meta, nil
}

func (s *FakeContentStore) Delete(_ context.Context, fileID string) error {
	time.Sleep(s.Latency)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, fileID)
	return nil
}

// Exists reports whether a file is still stored. Tests assert compensation
// through this.
func (s *FakeContentStore) Exists(fileID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[fileID]
	return ok
}

// FakeFileParser returns a fixed number of records per file. Fail makes every
// call report a parser-side failure.
type FakeFileParser struct {
	Latency time.Duration
	Records int
	Fail    bool
}

func (p *FakeFileParser) Parse(_ context.Context, fileID string) ([]ParsedRecord, error) {
	time.Sleep(p.Latency)
	if p.Fail {
		return nil, fmt.Errorf("parser rejected file %s", fileID)
	}
	n := p.Records
	if n == 0 {
		n = 3
	}
	short := fileID
	if len(short) > 8 {
		short = short[:8]
	}
	out := make([]ParsedRecord, 0, n)
	for i := range n {
		out = append(out, ParsedRecord{
			PolicyID: fmt.Sprintf("POL-%s-%d", short, i+1),
			Fields:   map[string]string{"source_file": fileID},
		})
	}
	return out, nil
}

// FakeSchemaMapper maps fields one-to-one into the canonical model.
type FakeSchemaMapper struct {
	Latency      time.Duration
	FailValidate bool
}

func (m *FakeSchemaMapper) DiscoverSchema(_ context.Context, fileID string) (SchemaRef, error) {
	time.Sleep(m.Latency)
	return SchemaRef{ID: "legacy-policy-schema", Version: "1"}, nil
}

func (m *FakeSchemaMapper) MapToCanonical(_ context.Context, _ SchemaRef, records []ParsedRecord) ([]CanonicalRecord, error) {
	time.Sleep(m.Latency)
	out := make([]CanonicalRecord, 0, len(records))
	for _, r := range records {
		out = append(out, CanonicalRecord{PolicyID: r.PolicyID, Canonical: r.Fields})
	}
	return out, nil
}

func (m *FakeSchemaMapper) ValidateAgainstModel(_ context.Context, records []CanonicalRecord) error {
	time.Sleep(m.Latency)
	if m.FailValidate {
		return fmt.Errorf("%d records do not satisfy the canonical model", len(records))
	}
	return nil
}

// FakeRoutingEngine routes everything to a single destination.
type FakeRoutingEngine struct {
	Latency     time.Duration
	Destination string
}

func (e *FakeRoutingEngine) GetRoutingKey(_ context.Context, record CanonicalRecord) (string, error) {
	time.Sleep(e.Latency)
	return "policy/" + record.PolicyID, nil
}

func (e *FakeRoutingEngine) EvaluateRouting(_ context.Context, key string) (RoutingDecision, error) {
	time.Sleep(e.Latency)
	dest := e.Destination
	if dest == "" {
		dest = "new_system"
	}
	return RoutingDecision{RoutingKey: key, Destination: dest}, nil
}

// FakeDocumentStore keeps documents in memory. DeleteDocument is idempotent.
type FakeDocumentStore struct {
	Latency time.Duration

	mu   sync.Mutex
	docs map[string]map[string]any
}

func NewFakeDocumentStore() *FakeDocumentStore {
	return &FakeDocumentStore{docs: make(map[string]map[string]any)}
}

func (s *FakeDocumentStore) StoreDocument(_ context.Context, docID string, doc map[string]any) error {
	time.Sleep(s.Latency)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[docID] = doc
	return nil
}

func (s *FakeDocumentStore) RetrieveDocument(_ context.Context, docID string) (map[string]any, error) {
	time.Sleep(s.Latency)
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[docID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return doc, nil
}

func (s *FakeDocumentStore) DeleteDocument(_ context.Context, docID string) error {
	time.Sleep(s.Latency)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, docID)
	return nil
}

// Exists reports whether a document is stored.
func (s *FakeDocumentStore) Exists(docID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[docID]
	return ok
}

// FakeLineageRecorder accumulates edges for inspection.
type FakeLineageRecorder struct {
	Latency time.Duration

	mu    sync.Mutex
	edges []LineageEdge
}

func NewFakeLineageRecorder() *FakeLineageRecorder {
	return &FakeLineageRecorder{}
}

func (r *FakeLineageRecorder) TrackLineage(_ context.Context, edge LineageEdge) error {
	time.Sleep(r.Latency)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edges = append(r.edges, edge)
	return nil
}

// Edges returns a copy of the recorded lineage.
func (r *FakeLineageRecorder) Edges() []LineageEdge {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LineageEdge(nil), r.edges...)
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"policybridge/internal/collab"
	"policybridge/internal/migration"
	migrationhandler "policybridge/internal/migration/handler"
	"policybridge/internal/reconcile"
	reconcilehandler "policybridge/internal/reconcile/handler"
	registryhandler "policybridge/internal/registry/handler"
	regservice "policybridge/internal/registry/service"
	"policybridge/internal/registry/store"
	"policybridge/internal/resolver"
	"policybridge/internal/validation"
	validationhandler "policybridge/internal/validation/handler"
	"policybridge/internal/wal"
)

// RouterSuite exercises the full public surface over HTTP with real services
// and in-process collaborator fakes, the way cmd/server wires them.
type RouterSuite struct {
	suite.Suite
	router http.Handler
	parser *collab.FakeFileParser
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry, err := regservice.New(store.NewInMemory())
	s.Require().NoError(err)

	s.parser = &collab.FakeFileParser{Records: 2}
	discovery := resolver.NewDiscovery()
	discovery.Register(migration.SvcContentStore, collab.NewFakeContentStore())
	discovery.Register(migration.SvcFileParser, s.parser)
	discovery.Register(migration.SvcSchemaMapper, &collab.FakeSchemaMapper{})
	discovery.Register(migration.SvcRoutingEngine, &collab.FakeRoutingEngine{})
	discovery.Register(migration.SvcDocumentStore, collab.NewFakeDocumentStore())
	discovery.Register(migration.SvcLineageRecorder, collab.NewFakeLineageRecorder())

	pipelines, err := migration.New(resolver.NewChain(discovery), registry, wal.NewInMemory(), migration.WithLogger(logger))
	s.Require().NoError(err)

	validator, err := validation.New(registry, validation.WithLogger(logger))
	s.Require().NoError(err)

	reconciler, err := reconcile.New(registry, reconcile.WithLogger(logger))
	s.Require().NoError(err)

	s.router = NewRouter(Deps{
		Logger: logger,
		Handlers: []Registrar{
			registryhandler.New(registry, logger),
			migrationhandler.New(pipelines, logger),
			validationhandler.New(validator, logger),
			reconcilehandler.New(reconciler, logger),
		},
		Health: []HealthCheck{
			{Name: "registry", Check: func(context.Context) error { return nil }},
		},
	})
}

func (s *RouterSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) decode(rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (s *RouterSuite) TestHealthz() {
	rec := s.do(http.MethodGet, "/healthz", nil)
	s.Equal(http.StatusOK, rec.Code)

	deps := s.decode(rec)["dependencies"].(map[string]any)
	s.Equal("ok", deps["registry"])
}

func (s *RouterSuite) TestUnhealthyDependency() {
	router := NewRouter(Deps{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Health: []HealthCheck{
			{Name: "postgres", Check: func(context.Context) error { return errors.New("connection refused") }},
		},
	})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	s.Equal(http.StatusServiceUnavailable, rec.Code)
}

func (s *RouterSuite) TestMetricsEndpoint() {
	rec := s.do(http.MethodGet, "/metrics", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "go_goroutines")
}

func (s *RouterSuite) TestRequestIDPropagated() {
	rec := s.do(http.MethodGet, "/healthz", nil)
	s.NotEmpty(rec.Header().Get("X-Request-ID"))
}

// TestMigrationEndToEnd runs ingest, map, and route over HTTP, then walks a
// routed policy through completion and validation and reconciles the two
// systems.
func (s *RouterSuite) TestMigrationEndToEnd() {
	// Ingest.
	rec := s.do(http.MethodPost, "/migration/ingest", map[string]any{
		"file_name": "policies.csv",
		"payload":   []byte("POL-1\nPOL-2\n"),
		"wave":      "wave-1",
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	ingest := s.decode(rec)
	s.Require().Equal(true, ingest["success"], rec.Body.String())
	ingestCtx := ingest["context"].(map[string]any)

	// Map to canonical.
	rec = s.do(http.MethodPost, "/migration/map", map[string]any{
		"records_doc": ingestCtx["records_doc"],
		"file_id":     ingestCtx["file_id"],
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	mapped := s.decode(rec)
	s.Require().Equal(true, mapped["success"], rec.Body.String())
	mapCtx := mapped["context"].(map[string]any)

	// Route.
	rec = s.do(http.MethodPost, "/migration/route", map[string]any{
		"canonical_doc": mapCtx["canonical_doc"],
		"wave":          "wave-1",
		"system_id":     "Legacy",
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Require().Equal(true, s.decode(rec)["success"], rec.Body.String())

	// Routed policies are registered in the legacy system.
	rec = s.do(http.MethodGet, "/policies?location=legacy_system", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	records := s.decode(rec)["records"].([]any)
	s.Require().Len(records, 2)
	policyID := records[0].(map[string]any)["id"].(string)

	// Drive one policy to completed and validate it.
	for _, status := range []string{"in_progress", "completed"} {
		rec = s.do(http.MethodPost, "/policies/"+policyID+"/status", map[string]any{
			"status": status, "wave_id": "wave-1",
		})
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodPost, "/policies/"+policyID+"/validate", nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	report := s.decode(rec)
	s.Equal(true, report["validation_passed"])
	s.Equal("validated", report["status"])

	// Reconcile: the completed policy moved to new_system but its history
	// still names only the legacy system id.
	rec = s.do(http.MethodPost, "/reconcile", map[string]any{
		"system_a": "Legacy",
		"system_b": "New",
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	recon := s.decode(rec)
	s.Equal(true, recon["success"])
	s.Len(recon["in_a_only"].([]any), 2)
	s.Len(recon["discrepancies"].([]any), 2)
}

func (s *RouterSuite) TestFailedPipelineIsInspectable() {
	s.parser.Fail = true

	rec := s.do(http.MethodPost, "/migration/ingest", map[string]any{
		"file_name": "broken.csv",
		"payload":   []byte("x"),
	})
	s.Require().Equal(http.StatusOK, rec.Code, "step failures are results, not HTTP errors")
	res := s.decode(rec)
	s.Equal(false, res["success"])
	s.Equal("parse_records", res["failed_step"])
	sagaID := res["saga_id"].(string)

	rec = s.do(http.MethodGet, "/migration/sagas/"+sagaID, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	state := s.decode(rec)["saga"].(map[string]any)
	s.Equal("compensated", state["status"])

	s.Run("listable by status", func() {
		rec := s.do(http.MethodGet, "/migration/sagas?pipeline=ingest&status=compensated", nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		s.Equal(float64(1), s.decode(rec)["count"])
	})

	s.Run("resume retries with original input", func() {
		s.parser.Fail = false
		rec := s.do(http.MethodPost, "/migration/sagas/"+sagaID+"/resume", nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		s.Equal(true, s.decode(rec)["success"])
	})
}

func (s *RouterSuite) TestValidationRejectsUnknownPolicy() {
	rec := s.do(http.MethodPost, "/policies/POL-404/validate", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

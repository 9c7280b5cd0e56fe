package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"policybridge/internal/registry/service"
	"policybridge/internal/registry/store"
)

type HandlerSuite struct {
	suite.Suite
	router http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	svc, err := service.New(store.NewInMemory())
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	New(svc, logger).Register(r)
	s.router = r
}

func (s *HandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
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

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (s *HandlerSuite) register(id string) {
	rec := s.do(http.MethodPost, "/policies", RegisterRequest{
		ID:       id,
		Location: "legacy_system",
		SystemID: "Mainframe",
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
}

func (s *HandlerSuite) TestRegisterAndGet() {
	s.register("POL-1")

	rec := s.do(http.MethodGet, "/policies/POL-1", nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	body := s.decode(rec)
	s.Equal(true, body["success"])
	record := body["record"].(map[string]any)
	s.Equal("legacy_system", record["current_location"])
	s.Equal("not_started", record["migration_status"])
}

func (s *HandlerSuite) TestRegisterValidation() {
	s.Run("invalid json", func() {
		req := httptest.NewRequest(http.MethodPost, "/policies", bytes.NewReader([]byte("not json")))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("missing id", func() {
		rec := s.do(http.MethodPost, "/policies", RegisterRequest{Location: "legacy_system"})
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
		s.Equal(false, s.decode(rec)["success"])
	})

	s.Run("invalid location", func() {
		rec := s.do(http.MethodPost, "/policies", RegisterRequest{ID: "POL-1", Location: "mars"})
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestStatusTransitions() {
	s.register("POL-1")

	update := func(status string) *httptest.ResponseRecorder {
		return s.do(http.MethodPost, "/policies/POL-1/status", StatusRequest{Status: status, WaveID: "wave-1"})
	}

	rec := update("in_progress")
	s.Require().Equal(http.StatusOK, rec.Code)
	record := s.decode(rec)["record"].(map[string]any)
	s.Equal("in_transit", record["current_location"])

	rec = update("completed")
	s.Require().Equal(http.StatusOK, rec.Code)
	record = s.decode(rec)["record"].(map[string]any)
	s.Equal("new_system", record["current_location"])

	s.Run("illegal transition conflicts", func() {
		rec := update("not_started")
		s.Equal(http.StatusConflict, rec.Code)
	})

	s.Run("unknown status", func() {
		rec := update("done")
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("unknown policy", func() {
		rec := s.do(http.MethodPost, "/policies/POL-404/status", StatusRequest{Status: "in_progress"})
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *HandlerSuite) TestGetUnknownPolicy() {
	rec := s.do(http.MethodGet, "/policies/POL-404", nil)
	s.Equal(http.StatusNotFound, rec.Code)

	body := s.decode(rec)
	s.Equal(false, body["success"])
	s.Equal("not_found", body["error"])
}

func (s *HandlerSuite) TestListByLocation() {
	for i := 1; i <= 3; i++ {
		s.register(fmt.Sprintf("POL-%d", i))
	}

	rec := s.do(http.MethodGet, "/policies?location=legacy_system", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	body := s.decode(rec)
	s.Equal(float64(3), body["count"])

	s.Run("location required", func() {
		rec := s.do(http.MethodGet, "/policies", nil)
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
	})

	s.Run("empty location has no records", func() {
		rec := s.do(http.MethodGet, "/policies?location=new_system", nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		s.Equal(float64(0), s.decode(rec)["count"])
	})
}

// Package handler wires the migration pipelines to HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"policybridge/internal/migration"
	"policybridge/internal/saga"
	dErrors "policybridge/pkg/domain-errors"
	"policybridge/pkg/platform/httputil"
	"policybridge/pkg/requestcontext"
)

// Service defines the pipeline operations the handler exposes.
type Service interface {
	IngestLegacyData(ctx context.Context, req migration.IngestRequest) (*saga.Result, error)
	MapToCanonical(ctx context.Context, req migration.MapRequest) (*saga.Result, error)
	RoutePolicies(ctx context.Context, req migration.RouteRequest) (*saga.Result, error)
	GetSaga(ctx context.Context, sagaID string) (*saga.State, error)
	ListSagas(ctx context.Context, filter saga.Filter) ([]*saga.State, error)
	Resume(ctx context.Context, sagaID string) (*saga.Result, error)
	CompensateMilestone(ctx context.Context, sagaID, milestoneID string) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts pipeline endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/migration/ingest", h.HandleIngest)
	r.Post("/migration/map", h.HandleMap)
	r.Post("/migration/route", h.HandleRoute)
	r.Get("/migration/sagas", h.HandleListSagas)
	r.Get("/migration/sagas/{id}", h.HandleGetSaga)
	r.Post("/migration/sagas/{id}/resume", h.HandleResume)
	r.Post("/migration/sagas/{id}/milestones/{milestoneID}/compensate", h.HandleCompensate)
}

// runPipeline funnels the three pipeline endpoints through one code path:
// service errors become error envelopes, saga results are returned as-is
// since they already carry the success field.
func (h *Handler) runPipeline(w http.ResponseWriter, ctx context.Context, pipeline string, run func() (*saga.Result, error)) {
	start := time.Now()
	res, err := run()
	if err != nil {
		h.logger.ErrorContext(ctx, "pipeline rejected",
			"request_id", requestcontext.RequestID(ctx),
			"pipeline", pipeline,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "pipeline finished",
		"request_id", requestcontext.RequestID(ctx),
		"pipeline", pipeline,
		"saga_id", res.SagaID,
		"success", res.Success,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleIngest handles POST /migration/ingest.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[*IngestRequest](w, r)
	if !ok {
		return
	}
	h.runPipeline(w, ctx, migration.PipelineIngest, func() (*saga.Result, error) {
		return h.service.IngestLegacyData(ctx, req.Domain())
	})
}

// HandleMap handles POST /migration/map.
func (h *Handler) HandleMap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[*MapRequest](w, r)
	if !ok {
		return
	}
	h.runPipeline(w, ctx, migration.PipelineMap, func() (*saga.Result, error) {
		return h.service.MapToCanonical(ctx, req.Domain())
	})
}

// HandleRoute handles POST /migration/route.
func (h *Handler) HandleRoute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[*RouteRequest](w, r)
	if !ok {
		return
	}
	h.runPipeline(w, ctx, migration.PipelineRoute, func() (*saga.Result, error) {
		return h.service.RoutePolicies(ctx, req.Domain())
	})
}

type sagaResponse struct {
	Success bool        `json:"success"`
	Saga    *saga.State `json:"saga"`
}

type sagasResponse struct {
	Success bool          `json:"success"`
	Sagas   []*saga.State `json:"sagas"`
	Count   int           `json:"count"`
}

// HandleGetSaga handles GET /migration/sagas/{id}.
func (h *Handler) HandleGetSaga(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.GetSaga(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sagaResponse{Success: true, Saga: state})
}

// HandleListSagas handles GET /migration/sagas?pipeline=...&status=...
func (h *Handler) HandleListSagas(w http.ResponseWriter, r *http.Request) {
	filter := saga.Filter{Name: strings.TrimSpace(r.URL.Query().Get("pipeline"))}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := saga.ParseStatus(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.Statuses = []saga.Status{status}
	}

	states, err := h.service.ListSagas(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sagasResponse{Success: true, Sagas: states, Count: len(states)})
}

// HandleResume handles POST /migration/sagas/{id}/resume.
func (h *Handler) HandleResume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sagaID := chi.URLParam(r, "id")
	h.runPipeline(w, ctx, "resume", func() (*saga.Result, error) {
		return h.service.Resume(ctx, sagaID)
	})
}

type compensateResponse struct {
	Success     bool   `json:"success"`
	SagaID      string `json:"saga_id"`
	MilestoneID string `json:"milestone_id"`
}

// HandleCompensate handles POST /migration/sagas/{id}/milestones/{milestoneID}/compensate.
func (h *Handler) HandleCompensate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sagaID := chi.URLParam(r, "id")
	milestoneID := chi.URLParam(r, "milestoneID")
	if milestoneID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "milestone id is required"))
		return
	}

	if err := h.service.CompensateMilestone(ctx, sagaID, milestoneID); err != nil {
		h.logger.ErrorContext(ctx, "compensation replay failed",
			"request_id", requestcontext.RequestID(ctx),
			"saga_id", sagaID,
			"milestone_id", milestoneID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, compensateResponse{Success: true, SagaID: sagaID, MilestoneID: milestoneID})
}

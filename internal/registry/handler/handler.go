// Package handler wires the policy location registry to HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"policybridge/internal/registry/models"
	dErrors "policybridge/pkg/domain-errors"
	"policybridge/pkg/platform/httputil"
	"policybridge/pkg/requestcontext"
)

// Service defines the registry operations the handler exposes.
type Service interface {
	RegisterPolicy(ctx context.Context, id string, loc models.Location, systemID string, metadata map[string]string) (*models.PolicyRecord, error)
	UpdateMigrationStatus(ctx context.Context, id string, status models.MigrationStatus, waveID, details string) (*models.PolicyRecord, error)
	GetPolicyLocation(ctx context.Context, id string) (*models.PolicyRecord, error)
	GetPoliciesByLocation(ctx context.Context, loc models.Location) ([]*models.PolicyRecord, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts registry endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/policies", h.HandleRegister)
	r.Get("/policies", h.HandleListByLocation)
	r.Get("/policies/{id}", h.HandleGetLocation)
	r.Post("/policies/{id}/status", h.HandleUpdateStatus)
}

type recordResponse struct {
	Success bool                 `json:"success"`
	Record  *models.PolicyRecord `json:"record"`
}

type recordsResponse struct {
	Success bool                   `json:"success"`
	Records []*models.PolicyRecord `json:"records"`
	Count   int                    `json:"count"`
}

// HandleRegister handles POST /policies.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[*RegisterRequest](w, r)
	if !ok {
		return
	}

	record, err := h.service.RegisterPolicy(ctx, req.ID, req.ParsedLocation(), req.SystemID, req.Metadata)
	if err != nil {
		h.logger.ErrorContext(ctx, "register policy failed",
			"request_id", requestcontext.RequestID(ctx),
			"policy_id", req.ID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, recordResponse{Success: true, Record: record})
}

// HandleUpdateStatus handles POST /policies/{id}/status.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policyID := chi.URLParam(r, "id")

	req, ok := httputil.Decode[*StatusRequest](w, r)
	if !ok {
		return
	}

	record, err := h.service.UpdateMigrationStatus(ctx, policyID, req.ParsedStatus(), req.WaveID, req.Details)
	if err != nil {
		h.logger.ErrorContext(ctx, "status update failed",
			"request_id", requestcontext.RequestID(ctx),
			"policy_id", policyID,
			"status", req.Status,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "migration status updated",
		"policy_id", policyID,
		"status", record.MigrationStatus,
		"location", record.CurrentLocation,
	)
	httputil.WriteJSON(w, http.StatusOK, recordResponse{Success: true, Record: record})
}

// HandleGetLocation handles GET /policies/{id}.
func (h *Handler) HandleGetLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	record, err := h.service.GetPolicyLocation(ctx, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, recordResponse{Success: true, Record: record})
}

// HandleListByLocation handles GET /policies?location=...
func (h *Handler) HandleListByLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw := strings.TrimSpace(r.URL.Query().Get("location"))
	if raw == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "location query parameter is required"))
		return
	}
	loc, err := models.ParseLocation(raw)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	records, err := h.service.GetPoliciesByLocation(ctx, loc)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, recordsResponse{Success: true, Records: records, Count: len(records)})
}

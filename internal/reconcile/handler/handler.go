// Package handler wires reconciliation to HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"policybridge/internal/reconcile"
	dErrors "policybridge/pkg/domain-errors"
	"policybridge/pkg/platform/httputil"
	"policybridge/pkg/requestcontext"
)

// Engine defines the reconciliation operation the handler exposes.
type Engine interface {
	Reconcile(ctx context.Context, systemA, systemB string, ids []string) (*reconcile.Result, error)
}

type Handler struct {
	engine Engine
	logger *slog.Logger
}

func New(engine Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// Register mounts reconciliation endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/reconcile", h.HandleReconcile)
}

// ReconcileRequest is the HTTP request body for POST /reconcile.
type ReconcileRequest struct {
	SystemA string   `json:"system_a"`
	SystemB string   `json:"system_b"`
	IDs     []string `json:"ids,omitempty"`
}

func (r *ReconcileRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.SystemA = strings.TrimSpace(r.SystemA)
	r.SystemB = strings.TrimSpace(r.SystemB)
	if r.SystemA == "" || r.SystemB == "" {
		return dErrors.New(dErrors.CodeValidation, "system_a and system_b are required")
	}
	return nil
}

type reconcileResponse struct {
	Success bool `json:"success"`
	*reconcile.Result
}

// HandleReconcile handles POST /reconcile.
func (h *Handler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[*ReconcileRequest](w, r)
	if !ok {
		return
	}

	result, err := h.engine.Reconcile(ctx, req.SystemA, req.SystemB, req.IDs)
	if err != nil {
		h.logger.ErrorContext(ctx, "reconciliation failed",
			"request_id", requestcontext.RequestID(ctx),
			"system_a", req.SystemA,
			"system_b", req.SystemB,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reconcileResponse{Success: true, Result: result})
}

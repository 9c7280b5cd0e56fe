// Package handler wires migration validation to HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"policybridge/internal/validation"
	dErrors "policybridge/pkg/domain-errors"
	"policybridge/pkg/platform/httputil"
	"policybridge/pkg/requestcontext"
)

// Engine defines the validation operation the handler exposes.
type Engine interface {
	ValidateMigration(ctx context.Context, id string, rules []validation.Rule) (*validation.Report, error)
}

type Handler struct {
	engine Engine
	logger *slog.Logger
}

func New(engine Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// Register mounts validation endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/policies/{id}/validate", h.HandleValidate)
}

// ValidateRequest optionally overrides the default rule list. An empty body
// is allowed and means default rules.
type ValidateRequest struct {
	Rules []validation.Rule `json:"rules,omitempty"`
}

func (r *ValidateRequest) Validate() error {
	if r == nil {
		return nil
	}
	for i, rule := range r.Rules {
		if strings.TrimSpace(rule.Name) == "" {
			return dErrors.Newf(dErrors.CodeValidation, "rules[%d].name is required", i)
		}
		switch rule.Kind {
		case validation.KindLocationCheck, validation.KindStatusCheck, validation.KindDataIntegrity:
		default:
			return dErrors.Newf(dErrors.CodeValidation, "rules[%d].kind %q is unknown", i, rule.Kind)
		}
	}
	return nil
}

type validateResponse struct {
	Success bool `json:"success"`
	*validation.Report
}

// HandleValidate handles POST /policies/{id}/validate. A failed rule is a
// reported outcome, not an HTTP error; only unknown ids and infrastructure
// faults produce error envelopes.
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policyID := chi.URLParam(r, "id")

	var rules []validation.Rule
	if r.ContentLength > 0 {
		req, ok := httputil.Decode[*ValidateRequest](w, r)
		if !ok {
			return
		}
		rules = req.Rules
	}

	report, err := h.engine.ValidateMigration(ctx, policyID, rules)
	if err != nil {
		h.logger.ErrorContext(ctx, "validation errored",
			"request_id", requestcontext.RequestID(ctx),
			"policy_id", policyID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "validation evaluated",
		"policy_id", policyID,
		"passed", report.Passed,
	)
	httputil.WriteJSON(w, http.StatusOK, validateResponse{Success: true, Report: report})
}

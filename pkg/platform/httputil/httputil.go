// Package httputil translates domain errors into HTTP responses.
//
// Every public operation answers with the uniform envelope: a JSON body that
// always carries a "success" field, plus "error"/"error_description" on
// failure. Internal errors omit the description so store and collaborator
// detail never leaks past the API boundary.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "policybridge/pkg/domain-errors"
)

// ErrorResponse is the failure half of the uniform envelope.
type ErrorResponse struct {
	Success          bool   `json:"success"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

var codeToStatus = map[dErrors.Code]int{
	dErrors.CodeBadRequest:         http.StatusBadRequest,
	dErrors.CodeNotFound:           http.StatusNotFound,
	dErrors.CodeConflict:           http.StatusConflict,
	dErrors.CodeInvariantViolation: http.StatusConflict,
	dErrors.CodeValidation:         http.StatusUnprocessableEntity,
	dErrors.CodeUnavailable:        http.StatusServiceUnavailable,
	dErrors.CodeExternal:           http.StatusBadGateway,
	dErrors.CodeCompensation:       http.StatusInternalServerError,
	dErrors.CodeTimeout:            http.StatusGatewayTimeout,
	dErrors.CodeInternal:           http.StatusInternalServerError,
}

// WriteError writes the envelope for a failed operation. Uncoded errors are
// treated as internal.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status, ok := codeToStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	resp := ErrorResponse{Error: string(code)}
	if status < http.StatusInternalServerError {
		resp.ErrorDescription = dErrors.MessageOf(err)
	}

	WriteJSON(w, status, resp)
}

// WriteJSON writes any payload with the given status. Encoding failures are
// unrecoverable at this point; the status line has already been sent.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Validatable is implemented by request body types that validate and
// normalize themselves after decoding.
type Validatable interface {
	Validate() error
}

// Decode parses the JSON request body into T and runs its validation. On any
// failure the error envelope has already been written and ok is false.
func Decode[T Validatable](w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed request body"))
		return req, false
	}
	if err := req.Validate(); err != nil {
		WriteError(w, err)
		return req, false
	}
	return req, true
}

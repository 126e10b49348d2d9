// Package httputil carries the JSON helpers shared by all handlers: response
// writing, the error envelope, and request decoding.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "fieldbook/pkg/domain-errors"
)

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the wire envelope for failures. Clients branch on the
// error code, which is the domain code verbatim.
type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteError renders err as the JSON error envelope. Internal and invariant
// errors omit the description so infrastructure details never leak.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	resp := errorResponse{Error: string(code)}
	var de *dErrors.Error
	if code != dErrors.CodeInternal && code != dErrors.CodeInvariantViolation && errors.As(err, &de) {
		resp.Description = de.Message
	}
	WriteJSON(w, StatusFor(code), resp)
}

// StatusFor maps a domain error code to its HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeConfirmationConflict:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeStaleTransition:
		return http.StatusConflict
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeStatsApplyIncomplete, dErrors.CodeProfileLoadFailed, dErrors.CodeRecognitionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// DecodeAndPrepare decodes the JSON request body into T. On failure it writes
// the invalid_input envelope and reports false; the handler just returns.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "rejecting malformed request body",
			"request_id", requestID, "error", err)
		WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed request body"))
		return req, false
	}
	return req, true
}

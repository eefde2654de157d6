package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"llamad/internal/manager"
	"llamad/pkg/llama"
	"llamad/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps service and engine errors to an HTTP status code.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case manager.IsModelNotFound(err):
		return http.StatusNotFound
	case manager.IsTooBusy(err):
		return http.StatusTooManyRequests
	case manager.IsDependencyUnavailable(err), manager.IsBudgetExceeded(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, llama.ErrEmbeddingsUnavailable):
		return http.StatusConflict
	case manager.IsInvalidRequest(err):
		return http.StatusBadRequest
	case llama.IsPredictionFailure(err), llama.IsDecodeFailure(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &he):
		return he.StatusCode()
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with its mapped status and counts 429s.
func writeServiceError(w http.ResponseWriter, err error) int {
	status := statusFor(err)
	if status == http.StatusTooManyRequests {
		IncrementBackpressure("queue")
	}
	if manager.IsBudgetExceeded(err) {
		IncrementBackpressure("vram_budget")
	}
	writeJSONError(w, status, err.Error())
	return status
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger().Error().Err(err).Msg("encode response")
	}
}

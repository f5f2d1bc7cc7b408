package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/lender-match/internal/matching"
	"github.com/sells-group/lender-match/internal/policy"
	"github.com/sells-group/lender-match/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	var snapErr *matching.InvalidSnapshotError

	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &snapErr):
		return http.StatusUnprocessableEntity
	default:
		// Includes stored policies that no longer load.
		return http.StatusInternalServerError
	}
}

// writeDomainError logs err and writes its mapped status. entity names
// the missing record in 404 bodies.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error, entity string) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	switch status {
	case http.StatusNotFound:
		writeError(w, status, entity+" not found")
		return
	case http.StatusConflict:
		writeError(w, status, entity+" already exists")
		return
	}
	writeError(w, status, domainMessage(err))
}

// domainMessage strips eris wrapping down to the domain error message.
// Errors without a domain type are not exposed.
func domainMessage(err error) string {
	var snapErr *matching.InvalidSnapshotError
	var cfgErr *policy.ConfigurationError
	var evalErr *matching.PolicyEvaluationError

	switch {
	case errors.As(err, &snapErr):
		return snapErr.Error()
	case errors.As(err, &cfgErr):
		return cfgErr.Error()
	case errors.As(err, &evalErr):
		return evalErr.Error()
	default:
		return "internal error"
	}
}

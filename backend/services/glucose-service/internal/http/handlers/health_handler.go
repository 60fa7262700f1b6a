package handlers

import (
	"context"
	"net/http"
)

// HealthChecker reports whether the storage backend answers.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewHealthHandler returns GET /api/v1/health handler.
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := checker.Health(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, "Database connection failed")
			return
		}
		writeStatus(w, "OK")
	}
}

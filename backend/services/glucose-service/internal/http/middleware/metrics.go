package middleware

import (
	"net/http"
	"time"
)

const unmatchedRoute = "unmatched"

// RequestObserver records per-request metrics.
type RequestObserver interface {
	ObserveRequest(route, method string, status int, elapsed time.Duration)
}

// Metrics reports every request to observer, labelled by the mux pattern that
// served it. It must wrap the ServeMux directly for the pattern to be visible.
func Metrics(observer RequestObserver) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			route := r.Pattern
			if route == "" {
				route = unmatchedRoute
			}
			observer.ObserveRequest(route, r.Method, rec.Status(), time.Since(started))
		})
	}
}

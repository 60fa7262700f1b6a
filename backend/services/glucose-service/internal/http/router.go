package httpserver

import (
	"net/http"

	"glucoseapi/backend/services/glucose-service/internal/http/middleware"
)

const apiPrefix = "/api/v1"

// Routes groups handlers.
type Routes struct {
	Health     http.HandlerFunc
	UploadCSV  http.HandlerFunc
	ListLevels http.HandlerFunc
	GetLevel   http.HandlerFunc
	Metrics    http.Handler
}

// NewRouter registers endpoints. protect wraps the data endpoints; health and
// metrics stay open.
func NewRouter(routes Routes, protect middleware.Middleware) http.Handler {
	if protect == nil {
		protect = func(next http.Handler) http.Handler { return next }
	}

	mux := http.NewServeMux()
	if routes.Health != nil {
		handleWithSlash(mux, apiPrefix+"/health", method(http.MethodGet, routes.Health))
	}
	if routes.UploadCSV != nil {
		handleWithSlash(mux, apiPrefix+"/upload-csv", protect(method(http.MethodPost, routes.UploadCSV)))
	}
	if routes.ListLevels != nil {
		handleWithSlash(mux, apiPrefix+"/levels", protect(method(http.MethodGet, routes.ListLevels)))
	}
	if routes.GetLevel != nil {
		handleWithSlash(mux, apiPrefix+"/levels/{id}", protect(method(http.MethodGet, routes.GetLevel)))
	}
	if routes.Metrics != nil {
		mux.Handle("/metrics", method(http.MethodGet, routes.Metrics.ServeHTTP))
	}
	return mux
}

// handleWithSlash serves path and path + "/" with the same handler. Older clients
// call the API with a trailing slash.
func handleWithSlash(mux *http.ServeMux, path string, handler http.Handler) {
	mux.Handle(path, handler)
	mux.Handle(path+"/{$}", handler)
}

func method(expected string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}

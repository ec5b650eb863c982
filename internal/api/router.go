package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/gridflow/internal/api/handlers"
	"github.com/wonny/gridflow/pkg/logger"
)

// NewRouter wires the status API routes. All routing lives here.
func NewRouter(jobs *handlers.JobsHandler, partitions *handlers.PartitionsHandler, reports *handlers.ReportsHandler, progress *ProgressHub, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Job control
	api.HandleFunc("/jobs", jobs.Trigger).Methods("POST")
	api.HandleFunc("/jobs", jobs.List).Methods("GET")
	api.HandleFunc("/jobs/{id}", jobs.Get).Methods("GET")

	// Store and quality inspection
	api.HandleFunc("/partitions", partitions.List).Methods("GET")
	api.HandleFunc("/reports", reports.Latest).Methods("GET")
	api.HandleFunc("/rules", reports.Rules).Methods("GET")

	// Live progress feed
	r.Handle("/ws/progress", progress)

	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status.
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "gridflow-api",
	})
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics.
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

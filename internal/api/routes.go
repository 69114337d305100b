package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"stealthcompany.com/fhirrecord/internal/metrics"
)

// SetupRoutes configures and returns the HTTP router
func SetupRoutes(h *Handlers) *mux.Router {
	r := mux.NewRouter()

	r.Use(metrics.MetricsMiddleware)

	r.HandleFunc("/health", HealthHandler).Methods("GET")
	r.HandleFunc("/records/{encounterID}", h.RecordHandler).Methods("GET")
	if h.Archive != nil {
		r.HandleFunc("/bundles/{encounterID}", h.ArchivedBundleHandler).Methods("GET")
	}
	r.HandleFunc("/query", h.QueryHandler).Methods("POST")

	r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})).Methods("GET")

	return r
}

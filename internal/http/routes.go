package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/domain-enricher/internal/service"
)

// RouterServices holds the services needed by the HTTP router.
type RouterServices struct {
	Reports *service.ReportService
	// Verifier enables bearer-token checks on /api routes when set.
	Verifier TokenVerifier
	// Metrics is served unauthenticated at MetricsPath (default /metrics) when set.
	Metrics     http.Handler
	MetricsPath string
	Logger      *slog.Logger
}

// NewRouter creates the read API router. /healthz and the metrics endpoint are never authenticated.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	api := http.NewServeMux()
	h := &ReportHandlers{Svc: services.Reports, Logger: logger}
	api.HandleFunc("GET /api/domains/{domain}", h.CurrentState)
	api.HandleFunc("GET /api/domains/{domain}/history", h.History)
	api.HandleFunc("GET /api/search", h.Search)
	api.HandleFunc("GET /api/companies/{id}/domains", h.CompanyDomains)
	api.HandleFunc("GET /api/workers", h.Workers)
	api.HandleFunc("GET /api/stages", h.Stages)

	mux := http.NewServeMux()
	mux.Handle("/api/", RequireBearer(services.Verifier)(api))
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	if services.Metrics != nil {
		path := services.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, services.Metrics)
	}
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

package api

import (
	"log/slog"
	"net/http"

	"github.com/Priya8975/bulk-mail-dispatcher/internal/metrics"
	ws "github.com/Priya8975/bulk-mail-dispatcher/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies groups everything the HTTP layer talks to.
type Dependencies struct {
	Jobs     JobService
	Runner   JobRunner
	Pool     EndpointService
	Verifier EndpointVerifier
	Summary  SummaryStore
	Hub      *ws.Hub
	Health   map[string]Pinger
	Logger   *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(metrics.Middleware)

	// CORS for dashboard
	r.Use(corsMiddleware)

	// Handlers
	jobHandler := NewJobHandler(deps.Jobs, deps.Runner, deps.Logger)
	endpointHandler := NewEndpointHandler(deps.Pool, deps.Verifier, deps.Logger)
	recipientHandler := NewRecipientHandler(deps.Logger)
	dashHandler := NewDashboardHandler(deps.Summary, deps.Jobs, deps.Runner, deps.Pool, deps.Hub, deps.Logger)

	// WebSocket endpoint
	r.Get("/ws", deps.Hub.HandleWebSocket)
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler(deps.Health))

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", jobHandler.Submit)
			r.Get("/", jobHandler.List)
			r.Get("/{id}", jobHandler.Get)
			r.Post("/{id}/pause", jobHandler.Pause)
			r.Post("/{id}/resume", jobHandler.Resume)
		})

		r.Route("/endpoints", func(r chi.Router) {
			r.Get("/", endpointHandler.List)
			r.Post("/", endpointHandler.Create)
			r.Post("/test", endpointHandler.Test)
			r.Delete("/{id}", endpointHandler.Delete)
			r.Post("/{id}/revive", endpointHandler.Revive)
		})

		r.Post("/recipients/parse", recipientHandler.Parse)
		r.Get("/metrics", dashHandler.Metrics)
	})

	return r
}

// corsMiddleware adds CORS headers for dashboard development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

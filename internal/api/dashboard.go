package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Priya8975/bulk-mail-dispatcher/internal/domain"
	"github.com/Priya8975/bulk-mail-dispatcher/internal/store"
)

type SummaryStore interface {
	GetDispatchSummary(ctx context.Context) (*store.DispatchSummary, error)
}

// ClientCounter reports how many live-feed subscribers are connected.
type ClientCounter interface {
	ClientCount() int
}

type DashboardHandler struct {
	summary SummaryStore
	jobs    JobService
	runner  JobRunner
	pool    EndpointService
	hub     ClientCounter
	logger  *slog.Logger
}

func NewDashboardHandler(summary SummaryStore, jobs JobService, runner JobRunner, pool EndpointService, hub ClientCounter, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{summary: summary, jobs: jobs, runner: runner, pool: pool, hub: hub, logger: logger}
}

type dashboardResponse struct {
	store.DispatchSummary
	RunningJobs      int                         `json:"running_jobs"`
	Endpoints        map[domain.HealthStatus]int `json:"endpoints"`
	WebSocketClients int                         `json:"websocket_clients"`
}

// Metrics returns aggregated dispatch totals for the dashboard.
func (h *DashboardHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	summary, err := h.summary.GetDispatchSummary(r.Context())
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to get metrics")
		return
	}

	running := 0
	for _, job := range h.jobs.List() {
		if h.runner.IsRunning(job.ID) {
			running++
		}
	}

	byStatus := map[domain.HealthStatus]int{
		domain.HealthActive:  0,
		domain.HealthDead:    0,
		domain.HealthUnknown: 0,
	}
	endpoints, err := h.pool.ListEndpoints(r.Context())
	if err != nil {
		h.logger.Warn("endpoint health unavailable for dashboard", "error", err)
	}
	for _, ep := range endpoints {
		byStatus[ep.Health.Status]++
	}

	respondJSON(w, http.StatusOK, dashboardResponse{
		DispatchSummary:  *summary,
		RunningJobs:      running,
		Endpoints:        byStatus,
		WebSocketClients: h.hub.ClientCount(),
	})
}

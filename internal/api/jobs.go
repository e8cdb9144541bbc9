package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Priya8975/bulk-mail-dispatcher/internal/domain"
	"github.com/go-chi/chi/v5"
)

// JobService creates and looks up jobs.
type JobService interface {
	Create(ctx context.Context, spec domain.JobSpec) (*domain.Job, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
	List() []*domain.Job
}

// JobRunner controls job dispatch loops.
type JobRunner interface {
	Start(ctx context.Context, jobID string) error
	Pause(ctx context.Context, jobID string) error
	Resume(ctx context.Context, jobID string) error
	IsRunning(jobID string) bool
}

type JobHandler struct {
	jobs   JobService
	runner JobRunner
	logger *slog.Logger
}

func NewJobHandler(jobs JobService, runner JobRunner, logger *slog.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, runner: runner, logger: logger}
}

type submitResponse struct {
	OK    bool   `json:"ok"`
	JobID string `json:"job_id"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// Submit stores a new job and starts dispatching it right away.
func (h *JobHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var spec domain.JobSpec
	if err := decodeJSON(w, r, &spec); err != nil {
		respondDomainError(w, h.logger, err, "invalid request body")
		return
	}

	job, err := h.jobs.Create(r.Context(), spec)
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to create job")
		return
	}

	if err := h.runner.Start(r.Context(), job.ID); err != nil {
		respondDomainError(w, h.logger, err, "job stored but could not be started")
		return
	}

	respondJSON(w, http.StatusCreated, submitResponse{OK: true, JobID: job.ID})
}

func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs.List()

	result := make([]domain.JobStatus, 0, len(jobs))
	for _, job := range jobs {
		status := job.Status(1)
		status.Running = h.runner.IsRunning(job.ID)
		result = append(result, status)
	}

	respondJSON(w, http.StatusOK, result)
}

// Get returns progress and the most recent log entries (?tail=N, at most 200).
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tail := domain.MaxLogEntries
	if raw := r.URL.Query().Get("tail"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "tail must be a positive integer")
			return
		}
		tail = min(n, domain.MaxLogEntries)
	}

	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to get job")
		return
	}

	status := job.Status(tail)
	status.Running = h.runner.IsRunning(id)
	respondJSON(w, http.StatusOK, status)
}

func (h *JobHandler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.runner.Pause(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondDomainError(w, h.logger, err, "failed to pause job")
		return
	}
	respondJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *JobHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.runner.Resume(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondDomainError(w, h.logger, err, "failed to resume job")
		return
	}
	respondJSON(w, http.StatusOK, okResponse{OK: true})
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Priya8975/bulk-mail-dispatcher/internal/domain"
	"github.com/google/uuid"
)

// SnapshotRepository is the durable side of the job store. SaveSnapshot must
// replace the whole document in one write.
type SnapshotRepository interface {
	SaveSnapshot(ctx context.Context, snap domain.Snapshot) error
	GetSnapshot(ctx context.Context, id string) (*domain.Snapshot, error)
	ListIncompleteSnapshots(ctx context.Context) ([]domain.Snapshot, error)
}

// JobStore keeps every known job in memory and mirrors it to the snapshot
// repository after each unit of work.
type JobStore struct {
	repo         SnapshotRepository
	defaultDelay float64
	logger       *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*domain.Job

	// One writer at a time per job document.
	writeMu sync.Mutex
	writers map[string]*sync.Mutex
}

// RestoreResult lists the jobs rebuilt from snapshots and the ids of those
// that were mid-send when the process stopped.
type RestoreResult struct {
	Jobs   []*domain.Job
	Resume []string
}

func NewJobStore(repo SnapshotRepository, defaultDelay float64, logger *slog.Logger) *JobStore {
	return &JobStore{
		repo:         repo,
		defaultDelay: defaultDelay,
		logger:       logger,
		jobs:         make(map[string]*domain.Job),
		writers:      make(map[string]*sync.Mutex),
	}
}

// Create validates the submission, persists an initial snapshot and registers the
// job. Nothing is kept when validation or the first write fails.
func (s *JobStore) Create(ctx context.Context, spec domain.JobSpec) (*domain.Job, error) {
	spec = spec.Normalize()
	if err := domain.Validate(spec); err != nil {
		return nil, err
	}

	job := domain.NewJob(uuid.NewString(), spec, spec.ResolveOptions(s.defaultDelay), time.Now().UTC())
	job.AppendLog(domain.LogInfo, fmt.Sprintf("Job created with %d recipients", len(job.Recipients)))

	if err := s.Snapshot(ctx, job, false); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	s.logger.Info("job created",
		"job_id", job.ID,
		"recipients", len(job.Recipients),
		"delay_seconds", job.Options.DelaySeconds,
		"rotate", job.Options.Rotate,
	)
	return job, nil
}

// Snapshot writes the job's full state together with the activity bit.
func (s *JobStore) Snapshot(ctx context.Context, job *domain.Job, active bool) error {
	lock := s.writer(job.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.repo.SaveSnapshot(ctx, job.Snapshot(active)); err != nil {
		return fmt.Errorf("saving snapshot for job %s: %w", job.ID, err)
	}
	return nil
}

func (s *JobStore) writer(id string) *sync.Mutex {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	lock, ok := s.writers[id]
	if !ok {
		lock = &sync.Mutex{}
		s.writers[id] = lock
	}
	return lock
}

// Get returns a job by id. Jobs that finished before the last restart are
// loaded from the repository on first access.
func (s *JobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if ok {
		return job, nil
	}

	snap, err := s.repo.GetSnapshot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading job %s: %w", id, err)
	}
	if snap == nil {
		return nil, domain.NewNotFound("job", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.jobs[id]; ok {
		return existing, nil
	}
	job = domain.JobFromSnapshot(*snap)
	s.jobs[id] = job
	return job, nil
}

// List returns the jobs held in memory, newest first.
func (s *JobStore) List() []*domain.Job {
	s.mu.RLock()
	jobs := make([]*domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	s.mu.RUnlock()

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})
	return jobs
}

// RestoreAll rebuilds every incomplete job from its snapshot. Jobs that were
// sending when the process stopped are queued for resumption; the rest are
// left paused for an operator.
func (s *JobStore) RestoreAll(ctx context.Context) (RestoreResult, error) {
	snaps, err := s.repo.ListIncompleteSnapshots(ctx)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("listing snapshots: %w", err)
	}

	result := RestoreResult{Jobs: []*domain.Job{}, Resume: []string{}}
	for _, snap := range snaps {
		job := domain.JobFromSnapshot(snap)
		if job.IsComplete() {
			continue
		}

		progress := job.Progress()
		if snap.Active && !snap.Paused {
			job.AppendLog(domain.LogWarn, fmt.Sprintf("Recovered after restart at %d/%d, resuming", progress.CurrentIndex, progress.Total))
			result.Resume = append(result.Resume, job.ID)
		} else {
			job.SetPaused(true)
			if err := s.Snapshot(ctx, job, false); err != nil {
				s.logger.Error("failed to persist restored job", "job_id", job.ID, "error", err)
			}
		}

		s.mu.Lock()
		s.jobs[job.ID] = job
		s.mu.Unlock()
		result.Jobs = append(result.Jobs, job)
	}

	s.logger.Info("jobs restored",
		"restored", len(result.Jobs),
		"resuming", len(result.Resume),
	)
	return result, nil
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Priya8975/bulk-mail-dispatcher/internal/domain"
	"github.com/Priya8975/bulk-mail-dispatcher/internal/engine"
	"github.com/Priya8975/bulk-mail-dispatcher/internal/metrics"
	ws "github.com/Priya8975/bulk-mail-dispatcher/internal/websocket"
)

// Broadcaster receives live progress events.
type Broadcaster interface {
	Broadcast(event ws.DispatchEvent)
}

// opTimeout bounds a single send or store write. Those run detached from the
// runner's lifetime so shutdown never aborts a send halfway.
const opTimeout = 60 * time.Second

var errShuttingDown = errors.New("runner is shutting down")

// Runner drives one dispatch loop per job. At most one loop exists per job id.
type Runner struct {
	jobs   *engine.JobStore
	pool   *engine.EndpointPool
	dialer Dialer
	hub    Broadcaster
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[string]*run
	closed  bool
}

type run struct {
	pause chan struct{}
	once  sync.Once
}

// wake interrupts the inter-send delay of the loop.
func (r *run) wake() {
	r.once.Do(func() { close(r.pause) })
}

func NewRunner(jobs *engine.JobStore, pool *engine.EndpointPool, dialer Dialer, hub Broadcaster, logger *slog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		jobs:    jobs,
		pool:    pool,
		dialer:  dialer,
		hub:     hub,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[string]*run),
	}
}

// Start launches the dispatch loop for a job. It fails with
// AlreadyRunningError while a loop for the same job is still alive,
// including one that is winding down after a pause.
func (r *Runner) Start(ctx context.Context, jobID string) error {
	job, err := r.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsComplete() {
		return domain.NewValidation("", "job is already complete")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errShuttingDown
	}
	if _, ok := r.running[jobID]; ok {
		return &domain.AlreadyRunningError{JobID: jobID}
	}

	rn := &run{pause: make(chan struct{})}
	r.running[jobID] = rn
	job.SetPaused(false)

	r.wg.Add(1)
	go r.loop(job, rn)
	return nil
}

// Resume restarts a paused job from where it stopped.
func (r *Runner) Resume(ctx context.Context, jobID string) error {
	if err := r.Start(ctx, jobID); err != nil {
		return err
	}
	r.logger.Info("job resumed", "job_id", jobID)
	return nil
}

// Pause asks the job's loop to stop at its next iteration boundary. An
// in-flight send is allowed to finish. Pausing a completed job is a no-op.
func (r *Runner) Pause(ctx context.Context, jobID string) error {
	job, err := r.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsComplete() {
		return nil
	}

	// Held across both steps so Start cannot clear the flag in between.
	r.mu.Lock()
	job.SetPaused(true)
	rn, running := r.running[jobID]
	r.mu.Unlock()

	if running {
		rn.wake()
	} else {
		r.persist(job, false)
	}

	r.logger.Info("job pause requested", "job_id", jobID, "running", running)
	return nil
}

func (r *Runner) IsRunning(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[jobID]
	return ok
}

// Recover rebuilds jobs from their snapshots and restarts those that were
// sending when the process stopped. It returns the number of resumed jobs.
func (r *Runner) Recover(ctx context.Context) (int, error) {
	result, err := r.jobs.RestoreAll(ctx)
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, id := range result.Resume {
		if err := r.Start(ctx, id); err != nil {
			r.logger.Error("failed to resume recovered job", "job_id", id, "error", err)
			continue
		}
		resumed++
	}
	return resumed, nil
}

// Shutdown stops every loop at its next suspension point and waits for them
// to exit. Jobs interrupted this way keep their active bit and are resumed
// by Recover on the next start.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) loop(job *domain.Job, rn *run) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.running, job.ID)
		r.mu.Unlock()
	}()

	metrics.JobsRunning.Inc()
	defer metrics.JobsRunning.Dec()

	cache := NewTransportCache(r.dialer, r.logger)
	defer cache.CloseAll()

	progress := job.Progress()
	job.AppendLog(domain.LogInfo, fmt.Sprintf("Dispatch started at %d/%d", progress.CurrentIndex, progress.Total))
	r.persist(job, true)
	r.broadcast(job, ws.DispatchEvent{Type: ws.EventStarted})
	r.logger.Info("job loop started", "job_id", job.ID, "index", progress.CurrentIndex, "total", progress.Total)

	var sticky string

	for {
		if job.IsPaused() {
			r.stopPaused(job)
			return
		}
		if r.ctx.Err() != nil {
			r.logger.Info("job loop interrupted by shutdown", "job_id", job.ID, "index", job.Progress().CurrentIndex)
			metrics.JobExits.WithLabelValues("shutdown").Inc()
			return
		}

		idx, recipient, ok := job.Next()
		if !ok {
			r.complete(job, cache)
			return
		}

		eligible, err := r.eligible(job)
		if err != nil {
			r.autoPause(job, fmt.Sprintf("Endpoint lookup failed: %v. Job auto-paused.", err))
			return
		}
		if len(eligible) == 0 {
			r.autoPause(job, "No eligible endpoints, all are dead. Job auto-paused.")
			return
		}

		ep := selectEndpoint(eligible, idx, job.Options.Rotate, &sticky)
		r.dispatch(job, cache, ep, recipient)

		if job.IsComplete() {
			r.complete(job, cache)
			return
		}

		r.wait(job.Options.Delay(), rn)
	}
}

// selectEndpoint rotates by recipient index, or sticks to one endpoint for
// as long as it stays eligible when rotation is off.
func selectEndpoint(eligible []domain.Endpoint, idx int, rotate bool, sticky *string) domain.Endpoint {
	if rotate {
		return eligible[idx%len(eligible)]
	}
	for _, ep := range eligible {
		if ep.ID == *sticky {
			return ep
		}
	}
	*sticky = eligible[0].ID
	return eligible[0]
}

func (r *Runner) eligible(job *domain.Job) ([]domain.Endpoint, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	eligible, err := r.pool.EligibleEndpoints(ctx)
	if err != nil {
		r.logger.Error("failed to load endpoints", "job_id", job.ID, "error", err)
	}
	return eligible, err
}

// dispatch renders and sends one message, then records the outcome against
// the job and the endpoint and persists the job.
func (r *Runner) dispatch(job *domain.Job, cache *TransportCache, ep domain.Endpoint, recipient string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	vars := engine.DeriveVariables(recipient)
	env := Envelope{
		FromName:   job.Sender.FromName,
		FromEmail:  job.Sender.FromEmail,
		To:         recipient,
		Subject:    engine.Render(job.Sender.Subject, vars),
		Body:       engine.Render(job.Sender.Content, vars),
		IsHTML:     job.Sender.IsHTML,
		Attachment: job.Sender.Attachment,
	}

	job.AppendLog(domain.LogInfo, fmt.Sprintf("Sending to %s via %s", recipient, ep.Host))

	start := time.Now()
	deliveryID, err := r.send(ctx, cache, ep, env)
	metrics.SendDuration.Observe(time.Since(start).Seconds())

	event := ws.DispatchEvent{
		Recipient:    recipient,
		EndpointID:   ep.ID,
		EndpointHost: ep.Host,
	}

	if err == nil {
		if deliveryID == "" {
			deliveryID = "n/a"
		}
		job.RecordOutcome(true, domain.LogSuccess, fmt.Sprintf("Sent %s (id:%s)", recipient, deliveryID))
		metrics.SendsTotal.WithLabelValues("sent").Inc()

		if err := r.pool.RecordSuccess(ctx, ep.ID); err != nil {
			r.logger.Error("failed to record endpoint success", "endpoint_id", ep.ID, "error", err)
		}

		event.Type = ws.EventSent
	} else {
		reason := err.Error()
		var terr *domain.TransportError
		isTransport := errors.As(err, &terr)
		if isTransport {
			reason = terr.Err.Error()
		}

		job.RecordOutcome(false, domain.LogError, fmt.Sprintf("Failed %s: %s", recipient, reason))
		metrics.SendsTotal.WithLabelValues("failed").Inc()
		r.logger.Warn("send failed",
			"job_id", job.ID,
			"recipient", recipient,
			"endpoint_id", ep.ID,
			"error", reason,
		)

		// A message that could not be built says nothing about the endpoint.
		if isTransport {
			r.recordEndpointFailure(job, ep, reason)
			cache.Invalidate(ep.ID)
		}

		event.Type = ws.EventFailed
		event.Error = reason
	}

	r.persist(job, true)
	r.broadcast(job, event)
}

func (r *Runner) send(ctx context.Context, cache *TransportCache, ep domain.Endpoint, env Envelope) (string, error) {
	handle, err := cache.Get(ep)
	if err != nil {
		return "", err
	}
	return handle.Send(ctx, env)
}

func (r *Runner) recordEndpointFailure(job *domain.Job, ep domain.Endpoint, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	status, err := r.pool.RecordFailure(ctx, ep.ID, reason)
	if err != nil {
		r.logger.Error("failed to record endpoint failure", "endpoint_id", ep.ID, "error", err)
		return
	}
	if status == domain.HealthDead {
		metrics.EndpointDeaths.Inc()
		job.AppendLog(domain.LogWarn, fmt.Sprintf("Endpoint %s (%s) is dead after %d consecutive failures", ep.Name, ep.Host, engine.DeadThreshold))
		r.broadcast(job, ws.DispatchEvent{Type: ws.EventEndpointDead, EndpointID: ep.ID, EndpointHost: ep.Host, Error: reason})
	}
}

// wait sleeps for the inter-send delay unless a pause or shutdown comes first.
func (r *Runner) wait(d time.Duration, rn *run) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-rn.pause:
	case <-r.ctx.Done():
	}
}

func (r *Runner) stopPaused(job *domain.Job) {
	progress := job.Progress()
	job.AppendLog(domain.LogWarn, fmt.Sprintf("Job paused at %d/%d", progress.CurrentIndex, progress.Total))
	r.persist(job, false)
	r.broadcast(job, ws.DispatchEvent{Type: ws.EventPaused})
	metrics.JobExits.WithLabelValues("paused").Inc()
	r.logger.Info("job paused", "job_id", job.ID, "index", progress.CurrentIndex)
}

// autoPause stops a job that has no usable endpoint left. It differs from an
// operator pause only in how it is logged.
func (r *Runner) autoPause(job *domain.Job, message string) {
	job.SetPaused(true)
	job.AppendLog(domain.LogError, message)
	r.persist(job, false)
	r.broadcast(job, ws.DispatchEvent{Type: ws.EventExhausted, Error: message})
	metrics.JobExits.WithLabelValues("exhausted").Inc()
	r.logger.Warn("job auto-paused", "job_id", job.ID, "index", job.Progress().CurrentIndex, "reason", message)
}

func (r *Runner) complete(job *domain.Job, cache *TransportCache) {
	progress := job.Progress()
	job.AppendLog(domain.LogInfo, fmt.Sprintf("Job complete. sent=%d failed=%d", progress.Sent, progress.Failed))
	cache.CloseAll()
	r.persist(job, false)
	r.broadcast(job, ws.DispatchEvent{Type: ws.EventCompleted})
	metrics.JobExits.WithLabelValues("completed").Inc()
	r.logger.Info("job complete", "job_id", job.ID, "sent", progress.Sent, "failed", progress.Failed)
}

// persist writes a snapshot. Failures are logged and the loop keeps going.
func (r *Runner) persist(job *domain.Job, active bool) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := r.jobs.Snapshot(ctx, job, active); err != nil {
		r.logger.Error("failed to persist job snapshot", "job_id", job.ID, "active", active, "error", err)
	}
}

func (r *Runner) broadcast(job *domain.Job, event ws.DispatchEvent) {
	progress := job.Progress()
	event.JobID = job.ID
	event.Index = progress.CurrentIndex
	event.Sent = progress.Sent
	event.Failed = progress.Failed
	event.Total = progress.Total
	r.hub.Broadcast(event)
}

package api

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Priya8975/bulk-mail-dispatcher/internal/domain"
	"github.com/Priya8975/bulk-mail-dispatcher/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeJobs struct {
	mu        sync.Mutex
	jobs      map[string]*domain.Job
	order     []string
	createErr error
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: make(map[string]*domain.Job)}
}

func (f *fakeJobs) Create(_ context.Context, spec domain.JobSpec) (*domain.Job, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	spec = spec.Normalize()
	if err := domain.Validate(spec); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "job-" + string(rune('a'+len(f.order)))
	job := domain.NewJob(id, spec, spec.ResolveOptions(domain.DefaultDelaySeconds), time.Now())
	f.jobs[id] = job
	f.order = append(f.order, id)
	return job, nil
}

func (f *fakeJobs) Get(_ context.Context, id string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.NewNotFound("job", id)
	}
	return job, nil
}

func (f *fakeJobs) List() []*domain.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Job, 0, len(f.order))
	for i := len(f.order) - 1; i >= 0; i-- {
		out = append(out, f.jobs[f.order[i]])
	}
	return out
}

type fakeRunner struct {
	mu      sync.Mutex
	running map[string]bool
	calls   []string
	err     error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{running: make(map[string]bool)}
}

func (f *fakeRunner) record(call, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call+":"+id)
	if f.err != nil {
		return f.err
	}
	f.running[id] = call != "pause"
	return nil
}

func (f *fakeRunner) Start(_ context.Context, id string) error { return f.record("start", id) }
func (f *fakeRunner) Pause(_ context.Context, id string) error { return f.record("pause", id) }
func (f *fakeRunner) Resume(_ context.Context, id string) error { return f.record("resume", id) }

func (f *fakeRunner) IsRunning(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[id]
}

func (f *fakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakePool struct {
	mu        sync.Mutex
	endpoints []domain.EndpointWithHealth
	revived   []string
	listErr   error
}

func (f *fakePool) AddEndpoint(_ context.Context, params domain.EndpointParams) (*domain.Endpoint, error) {
	params = params.Normalize()
	if err := domain.Validate(params); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ep := domain.Endpoint{
		ID:                 "ep-" + params.Username,
		Name:               params.Name,
		Host:               params.Host,
		Port:               params.Port,
		Username:           params.Username,
		Password:           params.Password,
		MaxMessagesPerConn: params.MaxMessagesPerConn,
	}
	f.endpoints = append(f.endpoints, domain.EndpointWithHealth{
		Endpoint: ep,
		Health:   domain.EndpointHealth{Status: domain.HealthActive},
	})
	return &ep, nil
}

func (f *fakePool) RemoveEndpoint(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, ep := range f.endpoints {
		if ep.ID == id {
			f.endpoints = append(f.endpoints[:i], f.endpoints[i+1:]...)
			return nil
		}
	}
	return domain.NewNotFound("endpoint", id)
}

func (f *fakePool) ListEndpoints(context.Context) ([]domain.EndpointWithHealth, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.EndpointWithHealth{}, f.endpoints...), nil
}

func (f *fakePool) ReviveEndpoint(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, ep := range f.endpoints {
		if ep.ID == id {
			f.endpoints[i].Health = domain.EndpointHealth{Status: domain.HealthActive}
			f.revived = append(f.revived, id)
			return nil
		}
	}
	return domain.NewNotFound("endpoint", id)
}

type fakeVerifier struct {
	err  error
	seen []domain.Endpoint
}

func (f *fakeVerifier) Verify(_ context.Context, ep domain.Endpoint) error {
	f.seen = append(f.seen, ep)
	return f.err
}

type fakeSummary struct {
	summary store.DispatchSummary
	err     error
}

func (f *fakeSummary) GetDispatchSummary(context.Context) (*store.DispatchSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := f.summary
	return &s, nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

var errBackendDown = errors.New("connection refused")

func domainAlreadyRunning(id string) error { return &domain.AlreadyRunningError{JobID: id} }

func domainNotFound(id string) error { return domain.NewNotFound("job", id) }

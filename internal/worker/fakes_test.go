package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/Priya8975/bulk-mail-dispatcher/internal/domain"
	ws "github.com/Priya8975/bulk-mail-dispatcher/internal/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// attempt is one call to Handle.Send as seen by the fake transport.
type attempt struct {
	EndpointID string
	Env        Envelope
	OK         bool
}

// fakeDialer hands out handles that record every send. Endpoints listed in
// failing reject every message with a transport error; recipients listed in
// invalid fail without the endpoint being at fault.
type fakeDialer struct {
	mu       sync.Mutex
	attempts []attempt
	dials    map[string]int
	handles  []*fakeHandle
	failing  map[string]bool
	invalid  map[string]bool
	dialErr  error
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		dials:   make(map[string]int),
		failing: make(map[string]bool),
		invalid: make(map[string]bool),
	}
}

func (d *fakeDialer) Dial(ep domain.Endpoint) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	d.dials[ep.ID]++
	h := &fakeHandle{dialer: d, endpoint: ep}
	d.handles = append(d.handles, h)
	return h, nil
}

func (d *fakeDialer) fail(endpointID string) {
	d.mu.Lock()
	d.failing[endpointID] = true
	d.mu.Unlock()
}

func (d *fakeDialer) Attempts() []attempt {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]attempt(nil), d.attempts...)
}

func (d *fakeDialer) DialCount(endpointID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[endpointID]
}

func (d *fakeDialer) OpenHandles() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	open := 0
	for _, h := range d.handles {
		if !h.closed {
			open++
		}
	}
	return open
}

type fakeHandle struct {
	dialer   *fakeDialer
	endpoint domain.Endpoint
	closed   bool
}

func (h *fakeHandle) Send(_ context.Context, env Envelope) (string, error) {
	d := h.dialer
	d.mu.Lock()
	defer d.mu.Unlock()

	if h.closed {
		return "", domain.NewTransportError(h.endpoint.ID, errors.New("send on closed handle"))
	}
	if d.invalid[env.To] {
		d.attempts = append(d.attempts, attempt{EndpointID: h.endpoint.ID, Env: env})
		return "", fmt.Errorf("invalid recipient %q", env.To)
	}
	if d.failing[h.endpoint.ID] {
		d.attempts = append(d.attempts, attempt{EndpointID: h.endpoint.ID, Env: env})
		return "", domain.NewTransportError(h.endpoint.ID, errors.New("535 authentication failed"))
	}

	d.attempts = append(d.attempts, attempt{EndpointID: h.endpoint.ID, Env: env, OK: true})
	return fmt.Sprintf("<%d@fake.test>", len(d.attempts)), nil
}

func (h *fakeHandle) Close() error {
	h.dialer.mu.Lock()
	h.closed = true
	h.dialer.mu.Unlock()
	return nil
}

type recordingHub struct {
	mu     sync.Mutex
	events []ws.DispatchEvent
}

func (h *recordingHub) Broadcast(event ws.DispatchEvent) {
	h.mu.Lock()
	h.events = append(h.events, event)
	h.mu.Unlock()
}

func (h *recordingHub) Types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	types := make([]string, len(h.events))
	for i, e := range h.events {
		types[i] = e.Type
	}
	return types
}

type memoryEndpoints struct {
	mu        sync.Mutex
	endpoints []domain.Endpoint
}

func (m *memoryEndpoints) CreateEndpoint(_ context.Context, ep *domain.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints = append(m.endpoints, *ep)
	return nil
}

func (m *memoryEndpoints) GetEndpoint(_ context.Context, id string) (*domain.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ep := range m.endpoints {
		if ep.ID == id {
			found := ep
			return &found, nil
		}
	}
	return nil, nil
}

func (m *memoryEndpoints) ListEndpoints(_ context.Context) ([]domain.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Endpoint(nil), m.endpoints...), nil
}

func (m *memoryEndpoints) DeleteEndpoint(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, ep := range m.endpoints {
		if ep.ID == id {
			m.endpoints = append(m.endpoints[:i], m.endpoints[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type memorySnapshots struct {
	mu      sync.Mutex
	docs    map[string]domain.Snapshot
	saveErr error
	failed  int
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{docs: make(map[string]domain.Snapshot)}
}

func (m *memorySnapshots) SaveSnapshot(_ context.Context, snap domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		m.failed++
		return m.saveErr
	}
	m.docs[snap.ID] = snap
	return nil
}

func (m *memorySnapshots) GetSnapshot(_ context.Context, id string) (*domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *memorySnapshots) ListIncompleteSnapshots(_ context.Context) ([]domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Snapshot
	for _, snap := range m.docs {
		if snap.Stats.CurrentIndex < len(snap.Recipients) {
			out = append(out, snap)
		}
	}
	return out, nil
}

// failWrites makes every later SaveSnapshot return err.
func (m *memorySnapshots) failWrites(err error) {
	m.mu.Lock()
	m.saveErr = err
	m.mu.Unlock()
}

func (m *memorySnapshots) failedWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failed
}

func (m *memorySnapshots) get(id string) domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[id]
}

package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/Priya8975/bulk-mail-dispatcher/internal/domain"
)

// memoryEndpoints is an in-memory EndpointRepository.
type memoryEndpoints struct {
	mu        sync.Mutex
	endpoints []domain.Endpoint
	listErr   error
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
	if m.listErr != nil {
		return nil, m.listErr
	}
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

// memorySnapshots is an in-memory SnapshotRepository.
type memorySnapshots struct {
	mu      sync.Mutex
	docs    map[string]domain.Snapshot
	writes  int
	saveErr error
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{docs: make(map[string]domain.Snapshot)}
}

var errStorageDown = errors.New("storage unavailable")

func (m *memorySnapshots) SaveSnapshot(_ context.Context, snap domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.docs[snap.ID] = snap
	m.writes++
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

func (m *memorySnapshots) get(id string) domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[id]
}

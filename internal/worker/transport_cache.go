package worker

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Priya8975/bulk-mail-dispatcher/internal/domain"
)

// TransportCache holds at most one handle per endpoint id. Each job run owns
// its own cache and releases it with CloseAll when the run ends, so two jobs
// running at once hold separate connections to a shared endpoint; handles
// are never shared across goroutines and need no locking of their own.
type TransportCache struct {
	dialer Dialer
	logger *slog.Logger

	mu      sync.Mutex
	handles map[string]Handle
}

func NewTransportCache(dialer Dialer, logger *slog.Logger) *TransportCache {
	return &TransportCache{
		dialer:  dialer,
		logger:  logger,
		handles: make(map[string]Handle),
	}
}

// Get returns the cached handle for the endpoint, dialing one on first use.
func (c *TransportCache) Get(ep domain.Endpoint) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.handles[ep.ID]; ok {
		return h, nil
	}

	h, err := c.dialer.Dial(ep)
	if err != nil {
		return nil, domain.NewTransportError(ep.ID, fmt.Errorf("creating transport: %w", err))
	}
	c.handles[ep.ID] = h
	return h, nil
}

// Invalidate closes and forgets the endpoint's handle so the next Get dials
// a fresh one.
func (c *TransportCache) Invalidate(endpointID string) {
	c.mu.Lock()
	h, ok := c.handles[endpointID]
	delete(c.handles, endpointID)
	c.mu.Unlock()

	if ok {
		c.close(endpointID, h)
	}
}

// CloseAll closes and clears every cached handle.
func (c *TransportCache) CloseAll() {
	c.mu.Lock()
	handles := c.handles
	c.handles = make(map[string]Handle)
	c.mu.Unlock()

	for id, h := range handles {
		c.close(id, h)
	}
}

func (c *TransportCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

func (c *TransportCache) close(endpointID string, h Handle) {
	if err := h.Close(); err != nil {
		c.logger.Debug("closing transport", "endpoint_id", endpointID, "error", err)
	}
}

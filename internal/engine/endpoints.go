package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Priya8975/bulk-mail-dispatcher/internal/domain"
	"github.com/google/uuid"
)

// EndpointRepository persists endpoint definitions.
type EndpointRepository interface {
	CreateEndpoint(ctx context.Context, ep *domain.Endpoint) error
	GetEndpoint(ctx context.Context, id string) (*domain.Endpoint, error)
	// ListEndpoints returns endpoints in creation order.
	ListEndpoints(ctx context.Context) ([]domain.Endpoint, error)
	DeleteEndpoint(ctx context.Context, id string) (bool, error)
}

// EndpointPool owns the configured SMTP endpoints and decides which of them
// may carry traffic.
type EndpointPool struct {
	repo   EndpointRepository
	health *HealthTracker
	logger *slog.Logger
}

func NewEndpointPool(repo EndpointRepository, health *HealthTracker, logger *slog.Logger) *EndpointPool {
	return &EndpointPool{repo: repo, health: health, logger: logger}
}

func (p *EndpointPool) AddEndpoint(ctx context.Context, params domain.EndpointParams) (*domain.Endpoint, error) {
	params = params.Normalize()
	if err := domain.Validate(params); err != nil {
		return nil, err
	}

	ep := &domain.Endpoint{
		ID:                 uuid.NewString(),
		Name:               params.Name,
		Host:               params.Host,
		Port:               params.Port,
		Secure:             params.Secure,
		Username:           params.Username,
		Password:           params.Password,
		MaxMessagesPerConn: params.MaxMessagesPerConn,
		CreatedAt:          time.Now().UTC(),
	}

	if err := p.repo.CreateEndpoint(ctx, ep); err != nil {
		return nil, fmt.Errorf("storing endpoint: %w", err)
	}

	// Without a record the endpoint reads as unknown, which is still eligible.
	if err := p.health.Initialize(ctx, ep.ID); err != nil {
		p.logger.Warn("failed to initialize endpoint health",
			"endpoint_id", ep.ID,
			"error", err,
		)
	}

	p.logger.Info("endpoint added",
		"endpoint_id", ep.ID,
		"host", ep.Host,
		"username", ep.Username,
	)
	return ep, nil
}

func (p *EndpointPool) RemoveEndpoint(ctx context.Context, id string) error {
	deleted, err := p.repo.DeleteEndpoint(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting endpoint: %w", err)
	}
	if !deleted {
		return domain.NewNotFound("endpoint", id)
	}

	if err := p.health.Delete(ctx, id); err != nil {
		p.logger.Warn("failed to delete endpoint health", "endpoint_id", id, "error", err)
	}

	p.logger.Info("endpoint removed", "endpoint_id", id)
	return nil
}

func (p *EndpointPool) GetEndpoint(ctx context.Context, id string) (*domain.Endpoint, error) {
	ep, err := p.repo.GetEndpoint(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading endpoint: %w", err)
	}
	if ep == nil {
		return nil, domain.NewNotFound("endpoint", id)
	}
	return ep, nil
}

// EligibleEndpoints returns, in creation order, every endpoint that is not dead.
// The result may be empty.
func (p *EndpointPool) EligibleEndpoints(ctx context.Context) ([]domain.Endpoint, error) {
	all, err := p.withHealth(ctx)
	if err != nil {
		return nil, err
	}

	eligible := make([]domain.Endpoint, 0, len(all))
	for _, ep := range all {
		if ep.Health.Status != domain.HealthDead {
			eligible = append(eligible, ep.Endpoint)
		}
	}
	return eligible, nil
}

// ListEndpoints returns every endpoint merged with its current health.
func (p *EndpointPool) ListEndpoints(ctx context.Context) ([]domain.EndpointWithHealth, error) {
	return p.withHealth(ctx)
}

func (p *EndpointPool) withHealth(ctx context.Context) ([]domain.EndpointWithHealth, error) {
	endpoints, err := p.repo.ListEndpoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing endpoints: %w", err)
	}

	ids := make([]string, len(endpoints))
	for i, ep := range endpoints {
		ids[i] = ep.ID
	}

	health, err := p.health.GetMany(ctx, ids)
	if err != nil {
		// Treat every endpoint as unknown rather than stalling all jobs on a
		// health store outage.
		p.logger.Warn("endpoint health unavailable", "error", err)
		health = map[string]domain.EndpointHealth{}
	}

	result := make([]domain.EndpointWithHealth, 0, len(endpoints))
	for _, ep := range endpoints {
		h, ok := health[ep.ID]
		if !ok {
			h = domain.EndpointHealth{Status: domain.HealthUnknown}
		}
		result = append(result, domain.EndpointWithHealth{Endpoint: ep, Health: h})
	}
	return result, nil
}

func (p *EndpointPool) RecordSuccess(ctx context.Context, id string) error {
	return p.health.RecordSuccess(ctx, id)
}

func (p *EndpointPool) RecordFailure(ctx context.Context, id, errText string) (domain.HealthStatus, error) {
	return p.health.RecordFailure(ctx, id, errText)
}

// ReviveEndpoint puts a dead endpoint back into rotation.
func (p *EndpointPool) ReviveEndpoint(ctx context.Context, id string) error {
	if _, err := p.GetEndpoint(ctx, id); err != nil {
		return err
	}
	return p.health.Revive(ctx, id)
}

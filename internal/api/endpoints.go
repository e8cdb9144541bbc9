package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Priya8975/bulk-mail-dispatcher/internal/domain"
	"github.com/go-chi/chi/v5"
)

// EndpointService manages the pool of outbound SMTP endpoints.
type EndpointService interface {
	AddEndpoint(ctx context.Context, params domain.EndpointParams) (*domain.Endpoint, error)
	RemoveEndpoint(ctx context.Context, id string) error
	ListEndpoints(ctx context.Context) ([]domain.EndpointWithHealth, error)
	ReviveEndpoint(ctx context.Context, id string) error
}

// EndpointVerifier checks that an endpoint accepts a connection and login.
type EndpointVerifier interface {
	Verify(ctx context.Context, ep domain.Endpoint) error
}

type EndpointHandler struct {
	pool     EndpointService
	verifier EndpointVerifier
	logger   *slog.Logger
}

func NewEndpointHandler(pool EndpointService, verifier EndpointVerifier, logger *slog.Logger) *EndpointHandler {
	return &EndpointHandler{pool: pool, verifier: verifier, logger: logger}
}

func (h *EndpointHandler) List(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.pool.ListEndpoints(r.Context())
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to list endpoints")
		return
	}
	respondJSON(w, http.StatusOK, endpoints)
}

func (h *EndpointHandler) Create(w http.ResponseWriter, r *http.Request) {
	var params domain.EndpointParams
	if err := decodeJSON(w, r, &params); err != nil {
		respondDomainError(w, h.logger, err, "invalid request body")
		return
	}

	ep, err := h.pool.AddEndpoint(r.Context(), params)
	if err != nil {
		respondDomainError(w, h.logger, err, "failed to add endpoint")
		return
	}

	respondJSON(w, http.StatusCreated, ep)
}

func (h *EndpointHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.pool.RemoveEndpoint(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondDomainError(w, h.logger, err, "failed to remove endpoint")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Revive clears a dead endpoint so jobs can select it again.
func (h *EndpointHandler) Revive(w http.ResponseWriter, r *http.Request) {
	if err := h.pool.ReviveEndpoint(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondDomainError(w, h.logger, err, "failed to revive endpoint")
		return
	}
	respondJSON(w, http.StatusOK, okResponse{OK: true})
}

type testResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Test verifies connection parameters without adding them to the pool.
// Health counters are not touched.
func (h *EndpointHandler) Test(w http.ResponseWriter, r *http.Request) {
	var params domain.EndpointParams
	if err := decodeJSON(w, r, &params); err != nil {
		respondDomainError(w, h.logger, err, "invalid request body")
		return
	}

	params = params.Normalize()
	if err := domain.Validate(params); err != nil {
		respondDomainError(w, h.logger, err, "invalid endpoint")
		return
	}

	ep := domain.Endpoint{
		Name:               params.Name,
		Host:               params.Host,
		Port:               params.Port,
		Secure:             params.Secure,
		Username:           params.Username,
		Password:           params.Password,
		MaxMessagesPerConn: params.MaxMessagesPerConn,
	}

	if err := h.verifier.Verify(r.Context(), ep); err != nil {
		h.logger.Info("endpoint test failed", "host", ep.Host, "port", ep.Port, "error", err)
		respondJSON(w, http.StatusBadRequest, testResponse{OK: false, Error: err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, testResponse{OK: true})
}

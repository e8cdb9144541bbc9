package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Priya8975/bulk-mail-dispatcher/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// respondDomainError maps the domain error taxonomy onto HTTP statuses.
// Anything unrecognized is logged and reported as a 500 without details.
func respondDomainError(w http.ResponseWriter, logger *slog.Logger, err error, fallback string) {
	var (
		verr    *domain.ValidationError
		nferr   *domain.NotFoundError
		running *domain.AlreadyRunningError
	)

	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Field: verr.Field})
	case errors.As(err, &nferr):
		respondError(w, http.StatusNotFound, nferr.Error())
	case errors.As(err, &running):
		respondError(w, http.StatusConflict, running.Error())
	default:
		logger.Error(fallback, "error", err)
		respondError(w, http.StatusInternalServerError, fallback)
	}
}

// maxBodyBytes caps request bodies; a full recipient list fits comfortably.
const maxBodyBytes = 10 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return domain.NewValidation("", "invalid request body")
	}
	return nil
}

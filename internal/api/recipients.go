package api

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

type RecipientHandler struct {
	logger *slog.Logger
}

func NewRecipientHandler(logger *slog.Logger) *RecipientHandler {
	return &RecipientHandler{logger: logger}
}

type parseResponse struct {
	OK         bool     `json:"ok"`
	Recipients []string `json:"recipients"`
	Count      int      `json:"count"`
}

// Parse turns an uploaded list (multipart field "file", or the raw body) into
// one trimmed address per non-empty line. Addresses are not validated here.
func (h *RecipientHandler) Parse(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			respondError(w, http.StatusBadRequest, "missing file field")
			return
		}
		defer file.Close()
		src = file
	}

	recipients, err := splitRecipients(src)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "recipient list too large")
			return
		}
		h.logger.Error("failed to read recipient list", "error", err)
		respondError(w, http.StatusBadRequest, "could not read recipient list")
		return
	}

	respondJSON(w, http.StatusOK, parseResponse{OK: true, Recipients: recipients, Count: len(recipients)})
}

func splitRecipients(src io.Reader) ([]string, error) {
	recipients := make([]string, 0)
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			recipients = append(recipients, line)
		}
	}
	return recipients, scanner.Err()
}

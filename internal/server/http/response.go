package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/helixir/pubmed-search-service/internal/domain"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort log; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// writeDomainError maps a domain error to an HTTP status and surfaces the
// error message verbatim.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to send.
		status = 499
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	} else {
		s.logger.Debug().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request rejected")
	}

	writeError(w, status, err.Error())
}

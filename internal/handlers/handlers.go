package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/sheet"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/models"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	sheets  *sheet.Registry
	db      Pinger
	service string
	logger  zerolog.Logger
}

// NewHandler creates a new handler with dependencies. db may be nil.
func NewHandler(sheets *sheet.Registry, db Pinger, logger zerolog.Logger) *Handler {
	return &Handler{
		sheets:  sheets,
		db:      db,
		service: "sheet-engine",
		logger:  logger,
	}
}

// HealthCheck returns the health status of the service
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			h.respondError(w, http.StatusServiceUnavailable, "database unhealthy", err)
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   h.service,
		"sheets":    h.sheets.Names(),
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(data)
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errResp := models.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	}

	if err != nil {
		ev := h.logger.Warn()
		if status >= http.StatusInternalServerError {
			ev = h.logger.Error()
		}
		ev.Err(err).Int("status", status).Msg(message)
	}

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		h.logger.Error().Err(err).Msg("error encoding error response")
	}
}

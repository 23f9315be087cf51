// Package handlers exposes the HTTP API: health, session lifecycle, and
// the turn endpoints. Handlers stay thin; the engine owns the pipeline.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/engine"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/state"
)

// ErrorResponse is the JSON error envelope for every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, payload any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, msg string) {
	writeJSON(w, logger, status, ErrorResponse{Error: msg})
}

// writeEngineError maps pipeline errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, engine.ErrSessionNotFound):
		writeError(w, logger, http.StatusNotFound, "Session not found")
	case errors.Is(err, engine.ErrSessionBusy):
		writeError(w, logger, http.StatusConflict, "A turn is already in flight for this session")
	case errors.Is(err, engine.ErrUnknownMember):
		writeError(w, logger, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrNothingToUndo):
		writeError(w, logger, http.StatusConflict, "Nothing to undo")
	case errors.Is(err, engine.ErrNoEvaluation):
		writeError(w, logger, http.StatusNotFound, "No event evaluation available")
	case errors.Is(err, state.ErrNotEnoughResource):
		writeError(w, logger, http.StatusUnprocessableEntity, err.Error())
	default:
		logger.Error("Request failed", "error", err)
		writeError(w, logger, http.StatusInternalServerError, "Internal server error")
	}
}

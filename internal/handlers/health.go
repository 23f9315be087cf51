package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/storage"
)

type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Service    string            `json:"service"`
	Components map[string]string `json:"components"`
}

type HealthHandler struct {
	storage storage.Storage
	logger  *slog.Logger
}

func NewHealthHandler(storage storage.Storage, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		storage: storage,
		logger:  logger,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only GET is supported.")
		return
	}

	response := HealthResponse{
		Status:     "ok",
		Timestamp:  time.Now().UTC(),
		Service:    "tales-api",
		Components: map[string]string{"storage": "ok"},
	}

	status := http.StatusOK
	if err := h.storage.Ping(r.Context()); err != nil {
		h.logger.Warn("Storage health check failed", "error", err)
		response.Status = "degraded"
		response.Components["storage"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode health response", "error", err)
	}
}

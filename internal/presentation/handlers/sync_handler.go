package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/treasury-sync/internal/application/services"
)

// SyncHandler handles on-demand ingestion requests
type SyncHandler struct {
	service *services.IngestorService
	logger  *zap.Logger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(service *services.IngestorService, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the sync routes
func (h *SyncHandler) RegisterRoutes(r chi.Router) {
	r.Post("/sync", h.Sync)
}

// Sync handles POST /sync
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req services.SyncRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.Sync(r.Context(), req)
	if err != nil {
		respondAppError(w, h.logger, err, "Sync failed")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/treasury-sync/internal/application/services"
)

// TreasuryHandler handles HTTP requests for treasuries
type TreasuryHandler struct {
	service *services.TreasuryService
	logger  *zap.Logger
}

// NewTreasuryHandler creates a new treasury handler
func NewTreasuryHandler(service *services.TreasuryService, logger *zap.Logger) *TreasuryHandler {
	return &TreasuryHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the treasury read routes
func (h *TreasuryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/treasuries", h.ListTreasuries)
	r.Get("/treasuries/{id}", h.GetTreasury)
}

// RegisterWriteRoutes registers the treasury write routes
func (h *TreasuryHandler) RegisterWriteRoutes(r chi.Router) {
	r.Post("/treasuries", h.Register)
}

// Register handles POST /treasuries
func (h *TreasuryHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	treasury, err := h.service.Register(r.Context(), req)
	if err != nil {
		respondAppError(w, h.logger, err, "Failed to register treasury")
		return
	}

	respondJSON(w, http.StatusOK, treasury)
}

// ListTreasuries handles GET /treasuries?owner=&chain_id=
func (h *TreasuryHandler) ListTreasuries(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")

	var chainID *int64
	if v := r.URL.Query().Get("chain_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "chain_id must be an integer")
			return
		}
		chainID = &id
	}

	response, err := h.service.ListTreasuries(r.Context(), owner, chainID)
	if err != nil {
		respondAppError(w, h.logger, err, "Failed to list treasuries")
		return
	}

	respondJSON(w, http.StatusOK, response)
}

// GetTreasury handles GET /treasuries/{id}
func (h *TreasuryHandler) GetTreasury(w http.ResponseWriter, r *http.Request) {
	treasury, err := h.service.GetTreasury(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondReadError(w, h.logger, err, "Failed to get treasury")
		return
	}

	respondJSON(w, http.StatusOK, treasury)
}

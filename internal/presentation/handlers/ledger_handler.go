package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/treasury-sync/internal/application/services"
	"github.com/bimakw/treasury-sync/internal/domain/entities"
)

// LedgerHandler handles HTTP requests for a treasury's ledger
type LedgerHandler struct {
	service *services.LedgerService
	logger  *zap.Logger
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(service *services.LedgerService, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the ledger read routes
func (h *LedgerHandler) RegisterRoutes(r chi.Router) {
	r.Get("/treasuries/{id}/transactions", h.GetTransactions)
}

// RegisterWriteRoutes registers the ledger write routes
func (h *LedgerHandler) RegisterWriteRoutes(r chi.Router) {
	r.Post("/treasuries/{id}/transactions", h.Record)
}

// GetTransactions handles GET /treasuries/{id}/transactions
func (h *LedgerHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	filter := entities.DefaultLedgerFilter(chi.URLParam(r, "id"))

	if v := r.URL.Query().Get("event_type"); v != "" {
		kind, ok := entities.ParseEventKind(v)
		if !ok {
			respondError(w, http.StatusBadRequest, "Invalid event_type")
			return
		}
		filter.EventType = &kind
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 && limit <= 1000 {
			filter.Limit = limit
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	page, err := h.service.GetTransactions(r.Context(), filter)
	if err != nil {
		respondReadError(w, h.logger, err, "Failed to get transactions")
		return
	}

	respondJSON(w, http.StatusOK, page)
}

// Record handles POST /treasuries/{id}/transactions
func (h *LedgerHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req services.RecordRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.Record(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondAppError(w, h.logger, err, "Failed to record transaction")
		return
	}

	status := http.StatusOK
	if result.Inserted {
		status = http.StatusCreated
	}
	respondJSON(w, status, result)
}

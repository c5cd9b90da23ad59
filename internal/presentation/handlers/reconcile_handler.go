package handlers

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/treasury-sync/internal/application/services"
	"github.com/bimakw/treasury-sync/internal/domain/apperr"
)

// ReconcileHandler handles stale-treasury deletion requests
type ReconcileHandler struct {
	service *services.ReconcilerService
	logger  *zap.Logger
}

// NewReconcileHandler creates a new reconcile handler
func NewReconcileHandler(service *services.ReconcilerService, logger *zap.Logger) *ReconcileHandler {
	return &ReconcileHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the reconcile routes
func (h *ReconcileHandler) RegisterRoutes(r chi.Router) {
	r.Post("/reconcile", h.Reconcile)
}

type reconcileBody struct {
	OwnerAddress     string          `json:"ownerAddress"`
	ChainID          json.RawMessage `json:"chainId"`
	StaleTreasuryIDs json.RawMessage `json:"staleTreasuryIds"`
}

// Reconcile handles POST /reconcile
func (h *ReconcileHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var body reconcileBody
	if err := decodeBody(w, r, &body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := body.toRequest()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.Reconcile(r.Context(), req)
	if err != nil {
		respondAppError(w, h.logger, err, "Reconcile failed")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// toRequest checks the JSON shape: chainId a positive integer, the id list
// an array of strings or numbers
func (b reconcileBody) toRequest() (services.ReconcileRequest, error) {
	req := services.ReconcileRequest{OwnerAddress: b.OwnerAddress}

	chainID, err := parseChainID(b.ChainID)
	if err != nil {
		return req, err
	}
	req.ChainID = chainID

	ids, err := parseIDList(b.StaleTreasuryIDs)
	if err != nil {
		return req, err
	}
	req.StaleTreasuryIDs = ids

	return req, nil
}

func parseChainID(raw json.RawMessage) (int64, error) {
	var v interface{}
	if err := useNumber(raw, &v); err != nil {
		return 0, apperr.Validation("chainId must be a positive integer")
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, apperr.Validation("chainId must be a positive integer")
	}

	if i, err := n.Int64(); err == nil {
		if i <= 0 {
			return 0, apperr.Validation("chainId must be a positive integer")
		}
		return i, nil
	}

	// 8453.0 is still an integer
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f <= 0 || f > math.MaxInt64 {
		return 0, apperr.Validation("chainId must be a positive integer")
	}
	return int64(f), nil
}

func parseIDList(raw json.RawMessage) ([]string, error) {
	var values []interface{}
	if err := useNumber(raw, &values); err != nil || values == nil {
		return nil, apperr.Validation("staleTreasuryIds must be an array")
	}

	ids := make([]string, 0, len(values))
	for _, v := range values {
		switch id := v.(type) {
		case string:
			ids = append(ids, id)
		case json.Number:
			ids = append(ids, id.String())
		default:
			return nil, apperr.Validation("staleTreasuryIds must contain strings or numbers")
		}
	}
	return ids, nil
}

func useNumber(raw json.RawMessage, dest interface{}) error {
	if len(raw) == 0 {
		return apperr.Validation("missing value")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(dest)
}

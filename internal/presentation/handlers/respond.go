package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/bimakw/treasury-sync/internal/domain/apperr"
)

// ErrorResponse is the body of every non-2xx API response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// maxBodyBytes caps request bodies on write routes
const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

// respondAppError maps an error kind to a status code. Validation errors
// carry their message; everything else reports message with the cause in
// details.
func respondAppError(w http.ResponseWriter, logger *zap.Logger, err error, message string) {
	status := statusFor(err)

	if status == http.StatusBadRequest {
		respondError(w, status, err.Error())
		return
	}

	if status >= http.StatusInternalServerError {
		logger.Error(message, zap.String("kind", string(apperr.KindOf(err))), zap.Error(err))
	}
	respondJSON(w, status, ErrorResponse{Error: message, Details: err.Error()})
}

// respondReadError is respondAppError for GET routes addressing a
// treasury by id, where an unknown id is a plain 404.
func respondReadError(w http.ResponseWriter, logger *zap.Logger, err error, message string) {
	if errors.Is(err, apperr.ErrNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondAppError(w, logger, err, message)
}

// statusFor keeps 4xx for malformed input. Resolution errors, an unknown
// treasury included, need an operator or data fix and surface as 500.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindResolution:
		return http.StatusInternalServerError
	case apperr.KindTransport:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// decodeBody decodes a JSON request body into dest. The returned error is
// a validation error suitable for a 400 response.
func decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dest); err != nil {
		return apperr.Validation("invalid JSON body: %s", strings.TrimPrefix(err.Error(), "json: "))
	}
	return nil
}

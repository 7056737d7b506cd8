package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_fashionary/internal/bulk"
	"github.com/fjod/go_fashionary/internal/circuitbreaker"
	"github.com/fjod/go_fashionary/internal/courier"
	"github.com/fjod/go_fashionary/internal/journal"
	"github.com/fjod/go_fashionary/internal/logger"
	"github.com/fjod/go_fashionary/internal/repository"
	"github.com/fjod/go_fashionary/internal/scan"
	"github.com/fjod/go_fashionary/internal/validation"
	"github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Warn("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// errorMapping translates domain errors to HTTP. The first match wins.
var errorMapping = []struct {
	target error
	status int
	code   string
}{
	{bulk.ErrEmptyBulkAction, http.StatusUnprocessableEntity, "empty_bulk_action"},
	{bulk.ErrUnknownAction, http.StatusBadRequest, "unknown_action"},
	{bulk.ErrInvalidStatus, http.StatusBadRequest, "invalid_status"},
	{validation.ErrInvalidStatus, http.StatusBadRequest, "invalid_status"},
	{scan.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
	{scan.ErrSessionClosed, http.StatusGone, "session_closed"},
	{scan.ErrBlankScan, http.StatusBadRequest, "blank_scan"},
	{scan.ErrDuplicateScan, http.StatusConflict, "duplicate_scan"},
	{scan.ErrValidationRejected, http.StatusUnprocessableEntity, "validation_rejected"},
	{journal.ErrDispatchNotFound, http.StatusNotFound, "dispatch_not_found"},
	{repository.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{repository.ErrIllegalTransition, http.StatusConflict, "illegal_transition"},
	{courier.ErrMissingAddress, http.StatusUnprocessableEntity, "courier_refused"},
	{courier.ErrNotBookable, http.StatusUnprocessableEntity, "courier_refused"},
	{circuitbreaker.ErrOpen, http.StatusServiceUnavailable, "service_unavailable"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
	{bulk.ErrBulkActionFailed, http.StatusBadGateway, "bulk_action_failed"},
}

func statusFor(err error) (int, string) {
	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// handleError writes err as an ErrorResponse. Server side failures are logged
// and their message is not leaked to the client.
func handleError(w http.ResponseWriter, r *http.Request, base *logrus.Entry, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context(), base).WithError(err).Error("request failed")
		message = "internal server error"
	}

	resp := ErrorResponse{Error: message, Code: code}
	if errors.Is(err, bulk.ErrBulkActionFailed) {
		resp.Details = "scanned orders were kept, retry when ready"
	}
	respondJSON(w, status, resp)
}

// decodeJSON reads a JSON body of at most limit bytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

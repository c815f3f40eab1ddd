package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/rijalghodi/qlaris-sub000/domain"
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
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleDomainError maps checkout errors onto HTTP status codes.
func handleDomainError(w http.ResponseWriter, err error) {
	var (
		httpStatus int
		code       string
	)

	switch {
	case errors.Is(err, domain.ErrInsufficientAmount):
		httpStatus, code = http.StatusUnprocessableEntity, "insufficient_amount"
	case errors.Is(err, domain.ErrEmptyOrder):
		httpStatus, code = http.StatusUnprocessableEntity, "empty_order"
	case errors.Is(err, domain.ErrInvalidQuantity):
		httpStatus, code = http.StatusUnprocessableEntity, "invalid_quantity"
	case errors.Is(err, domain.ErrInvalidAmount):
		httpStatus, code = http.StatusUnprocessableEntity, "invalid_amount"
	case errors.Is(err, domain.ErrIllegalTransition):
		httpStatus, code = http.StatusConflict, "illegal_transition"
	case errors.Is(err, domain.ErrFlowClosed):
		httpStatus, code = http.StatusConflict, "flow_closed"
	case errors.Is(err, domain.ErrCommitInProgress):
		httpStatus, code = http.StatusConflict, "commit_in_progress"
	case errors.Is(err, domain.ErrSessionEvicted):
		httpStatus, code = http.StatusConflict, "session_evicted"
	case errors.Is(err, domain.ErrProductNotFound):
		httpStatus, code = http.StatusNotFound, "product_not_found"
	case errors.Is(err, domain.ErrCatalogUnavailable):
		httpStatus, code = http.StatusServiceUnavailable, "catalog_unavailable"
	case errors.Is(err, domain.ErrTransactionCommitFailed):
		httpStatus, code = http.StatusBadGateway, "transaction_commit_failed"
	case errors.Is(err, context.DeadlineExceeded):
		httpStatus, code = http.StatusGatewayTimeout, "timeout"
	default:
		zap.L().Error("unhandled error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	respondError(w, httpStatus, code, err.Error())
}

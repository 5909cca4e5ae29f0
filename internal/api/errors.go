package api

import (
	"errors"
	"net/http"

	"pg-advisor/internal/domain"
)

// errorBody is the JSON shape every error response uses.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// httpStatusFromDomainError maps domain errors to HTTP status codes.
// Execution and sandbox failures are server-side problems, advisor
// failures blame the upstream provider, timeouts blame the target.
func httpStatusFromDomainError(err error) int {
	var (
		validation *domain.ValidationError
		notFound   *domain.NotFoundError
		conflict   *domain.ConflictError
		timeout    *domain.TimeoutError
		advisor    *domain.AdvisorError
	)

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &advisor):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as the standard error body. Internal errors
// are logged; the caller still sees the message.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := httpStatusFromDomainError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Code: status, Message: err.Error()})
}

package handler

import (
	"errors"
	"net/http"

	"github.com/edvin/llmgate/internal/api/response"
	"github.com/edvin/llmgate/internal/core"
)

// writeDomainError maps service-level sentinel errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrUnauthenticated), errors.Is(err, core.ErrSessionExpired):
		response.WriteError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, core.ErrNotFound):
		response.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrInvalidWindow), errors.Is(err, core.ErrHandshakeExpiredOrUnknown):
		response.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrReservationConflict):
		response.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrCapacityReserved):
		response.WriteError(w, http.StatusLocked, err.Error())
	case errors.Is(err, core.ErrBackendSaturated):
		response.WriteError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, core.ErrNoEligibleModel), errors.Is(err, core.ErrUIDPoolExhausted):
		response.WriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		response.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

package core

import "errors"

// Error taxonomy surfaced to the transport layer. Unauthenticated is a hard
// auth failure and never retried; NoEligibleModel, CapacityReserved and
// BackendSaturated are retryable-later conditions; the rest are surfaced
// as-is to the requesting user or approving admin.
var (
	ErrNotFound = errors.New("not found")

	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrNoEligibleModel  = errors.New("no eligible model loaded")
	ErrCapacityReserved = errors.New("capacity reserved for another user")
	ErrBackendSaturated = errors.New("backend at parallel-slot capacity")

	ErrReservationConflict = errors.New("reservation window conflicts with an approved or active reservation")
	ErrInvalidWindow       = errors.New("invalid reservation window")

	ErrUIDPoolExhausted          = errors.New("uid pool exhausted")
	ErrHandshakeExpiredOrUnknown = errors.New("login handshake expired or unknown")
	ErrSessionExpired            = errors.New("session expired")
)

package request

import "time"

// CreateReservation files a request for an exclusive capacity window.
type CreateReservation struct {
	StartsAt time.Time `json:"starts_at" validate:"required"`
	EndsAt   time.Time `json:"ends_at" validate:"required"`
	Reason   string    `json:"reason" validate:"required,max=500"`
}

// ReservationDecision carries the optional admin note on approve, reject and
// release.
type ReservationDecision struct {
	Note *string `json:"note,omitempty" validate:"omitempty,max=500"`
}

package model

import "time"

// Reservation status values. Transitions are one-way:
// pending -> approved -> active -> completed, pending -> rejected,
// {pending, approved} -> cancelled. Terminal states never re-enter the flow.
const (
	ReservationPending   = "pending"
	ReservationApproved  = "approved"
	ReservationActive    = "active"
	ReservationCompleted = "completed"
	ReservationRejected  = "rejected"
	ReservationCancelled = "cancelled"
)

// ReservationSlot is the fixed grid reservation windows align to.
const ReservationSlot = 30 * time.Minute

// Reservation is an admin-approved, time-boxed grant of exclusive backend
// capacity to one user. Windows are [StartsAt, EndsAt) on the slot grid.
type Reservation struct {
	ID         string    `json:"id" db:"id"`
	UserID     string    `json:"user_id" db:"user_id"`
	StartsAt   time.Time `json:"starts_at" db:"starts_at"`
	EndsAt     time.Time `json:"ends_at" db:"ends_at"`
	Status     string    `json:"status" db:"status"`
	Reason     string    `json:"reason" db:"reason"`
	AdminNote  *string   `json:"admin_note,omitempty" db:"admin_note"`
	ApprovedBy *string   `json:"approved_by,omitempty" db:"approved_by"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

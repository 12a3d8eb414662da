package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/llmgate/internal/model"
	"github.com/edvin/llmgate/internal/platform"
)

// ReservationService arbitrates exclusive, time-boxed access windows over the
// shared backend capacity. Conflict checks run inside the same statement as
// the state transition so two concurrent approvals of overlapping windows
// cannot both succeed; a partial exclusion constraint on approved/active rows
// is the storage-level backstop.
type ReservationService struct {
	db DB
}

func NewReservationService(db DB) *ReservationService {
	return &ReservationService{db: db}
}

// overlapPredicate matches any approved or active reservation whose
// [starts_at, ends_at) window intersects the candidate row r.
const overlapPredicate = `EXISTS (
	SELECT 1 FROM reservations o
	WHERE o.id <> r.id
	  AND o.status IN ('approved', 'active')
	  AND o.starts_at < r.ends_at
	  AND o.ends_at > r.starts_at)`

// Create files a pending reservation. The window must sit on the slot grid,
// end after it starts, and not lie in the past. Overlap with other requests
// is not checked here; pending windows may compete and an admin arbitrates
// at approval time.
func (s *ReservationService) Create(ctx context.Context, userID string, startsAt, endsAt time.Time, reason string) (*model.Reservation, error) {
	if !endsAt.After(startsAt) {
		return nil, fmt.Errorf("%w: end must be after start", ErrInvalidWindow)
	}
	if !startsAt.Truncate(model.ReservationSlot).Equal(startsAt) || !endsAt.Truncate(model.ReservationSlot).Equal(endsAt) {
		return nil, fmt.Errorf("%w: window must align to %s boundaries", ErrInvalidWindow, model.ReservationSlot)
	}
	// Comparing against the truncated clock admits the current slot: windows
	// sit on the grid, so a boundary that just passed is the earliest start a
	// caller reserving "now" can name.
	if startsAt.Before(time.Now().Truncate(model.ReservationSlot)) {
		return nil, fmt.Errorf("%w: window is in the past", ErrInvalidWindow)
	}

	res := &model.Reservation{
		ID:       platform.NewID(),
		UserID:   userID,
		StartsAt: startsAt,
		EndsAt:   endsAt,
		Status:   model.ReservationPending,
		Reason:   reason,
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO reservations (id, user_id, starts_at, ends_at, status, reason, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 'pending', $5, now(), now())
		 RETURNING created_at, updated_at`,
		res.ID, res.UserID, res.StartsAt, res.EndsAt, res.Reason,
	).Scan(&res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert reservation: %w", err)
	}

	return res, nil
}

// Approve transitions pending -> approved after re-checking, in the same
// statement, that no approved or active reservation overlaps the window.
// A conflicting window fails with ErrReservationConflict rather than
// silently approving.
func (s *ReservationService) Approve(ctx context.Context, id, adminID string, note *string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE reservations r
		 SET status = 'approved', approved_by = $2, admin_note = $3, updated_at = now()
		 WHERE r.id = $1 AND r.status = 'pending' AND NOT `+overlapPredicate,
		id, adminID, note,
	)
	if err != nil {
		// The exclusion constraint catches the race two concurrent approvals
		// would otherwise win together.
		if isExclusionViolation(err) {
			return ErrReservationConflict
		}
		return fmt.Errorf("approve reservation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Zero rows means the row is missing, not pending anymore, or the
		// overlap re-check failed; a still-pending row is a genuine conflict.
		var status string
		err := s.db.QueryRow(ctx, `SELECT status FROM reservations WHERE id = $1`, id).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get reservation %s: %w", id, err)
		}
		if status == model.ReservationPending {
			return ErrReservationConflict
		}
		return fmt.Errorf("reservation %s is %s, expected pending", id, status)
	}
	return nil
}

// Reject transitions pending -> rejected. Admin-only at the API layer.
func (s *ReservationService) Reject(ctx context.Context, id, adminID string, note *string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE reservations SET status = 'rejected', approved_by = $2, admin_note = $3, updated_at = now()
		 WHERE id = $1 AND status = 'pending'`,
		id, adminID, note,
	)
	if err != nil {
		return fmt.Errorf("reject reservation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionFailed(ctx, id, "pending")
	}
	return nil
}

// Cancel transitions pending or approved -> cancelled, by the owning user.
// An active reservation cannot be cancelled; it completes or an admin
// releases it.
func (s *ReservationService) Cancel(ctx context.Context, id, userID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE reservations SET status = 'cancelled', updated_at = now()
		 WHERE id = $1 AND user_id = $2 AND status IN ('pending', 'approved')`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("cancel reservation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionFailed(ctx, id, "pending or approved")
	}
	return nil
}

// Release force-completes an active reservation before its window ends.
// Admin-only escape hatch; the state machine stays one-way.
func (s *ReservationService) Release(ctx context.Context, id string, note *string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE reservations SET status = 'completed', admin_note = COALESCE($2, admin_note), updated_at = now()
		 WHERE id = $1 AND status = 'active'`,
		id, note,
	)
	if err != nil {
		return fmt.Errorf("release reservation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionFailed(ctx, id, "active")
	}
	return nil
}

func (s *ReservationService) transitionFailed(ctx context.Context, id, want string) error {
	var status string
	err := s.db.QueryRow(ctx, `SELECT status FROM reservations WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get reservation %s: %w", id, err)
	}
	return fmt.Errorf("reservation %s is %s, expected %s", id, status, want)
}

// Sweep performs the system-driven transitions: approved reservations whose
// window the current instant has entered become active, and active
// reservations whose window has passed become completed. Driven by a ticker;
// each transition is a single conditional statement.
func (s *ReservationService) Sweep(ctx context.Context, now time.Time) (activated, completed int64, err error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE reservations SET status = 'active', updated_at = now()
		 WHERE status = 'approved' AND starts_at <= $1 AND ends_at > $1`, now,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("activate reservations: %w", err)
	}
	activated = tag.RowsAffected()

	tag, err = s.db.Exec(ctx,
		`UPDATE reservations SET status = 'completed', updated_at = now()
		 WHERE status = 'active' AND ends_at <= $1`, now,
	)
	if err != nil {
		return activated, 0, fmt.Errorf("complete reservations: %w", err)
	}
	completed = tag.RowsAffected()

	return activated, completed, nil
}

const reservationColumns = `id, user_id, starts_at, ends_at, status, reason, admin_note, approved_by, created_at, updated_at`

func scanReservation(row interface{ Scan(dest ...any) error }) (model.Reservation, error) {
	var res model.Reservation
	err := row.Scan(&res.ID, &res.UserID, &res.StartsAt, &res.EndsAt, &res.Status,
		&res.Reason, &res.AdminNote, &res.ApprovedBy, &res.CreatedAt, &res.UpdatedAt)
	return res, err
}

// ActiveAt returns the reservation whose approved or active window contains
// the given instant, or nil when capacity is unreserved. Approved windows
// count even before the sweep has flipped them active, so exclusivity never
// depends on sweep timing.
func (s *ReservationService) ActiveAt(ctx context.Context, now time.Time) (*model.Reservation, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE status IN ('approved', 'active') AND starts_at <= $1 AND ends_at > $1
		 LIMIT 1`, now,
	)
	res, err := scanReservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active reservation: %w", err)
	}
	return &res, nil
}

func (s *ReservationService) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
	row := s.db.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id)
	res, err := scanReservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation %s: %w", id, err)
	}
	return &res, nil
}

// List retrieves reservations with an optional status filter and cursor
// pagination. Rows are ordered by id so the id cursor forms a stable keyset.
func (s *ReservationService) List(ctx context.Context, status string, limit int, cursor string) ([]model.Reservation, bool, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE 1=1`
	args := []any{}
	argIdx := 1

	if status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, status)
		argIdx++
	}
	if cursor != "" {
		query += fmt.Sprintf(` AND id > $%d`, argIdx)
		args = append(args, cursor)
		argIdx++
	}

	query += fmt.Sprintf(` ORDER BY id LIMIT $%d`, argIdx)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var reservations []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, false, fmt.Errorf("scan reservation: %w", err)
		}
		reservations = append(reservations, res)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate reservations: %w", err)
	}

	hasMore := len(reservations) > limit
	if hasMore {
		reservations = reservations[:limit]
	}
	return reservations, hasMore, nil
}

// ListByUser retrieves one user's reservations, newest window first.
func (s *ReservationService) ListByUser(ctx context.Context, userID string) ([]model.Reservation, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE user_id = $1 ORDER BY starts_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reservations for user %s: %w", userID, err)
	}
	defer rows.Close()

	var reservations []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		reservations = append(reservations, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}
	return reservations, nil
}

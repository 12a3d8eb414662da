package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/llmgate/internal/model"
)

// nextSlot returns a slot-aligned instant safely in the future.
func nextSlot(t *testing.T) time.Time {
	t.Helper()
	return time.Now().UTC().Truncate(model.ReservationSlot).Add(2 * model.ReservationSlot)
}

// ---------- Create ----------

func TestReservationService_Create_Success(t *testing.T) {
	db := &mockDB{}
	svc := NewReservationService(db)
	ctx := context.Background()

	startsAt := nextSlot(t)
	endsAt := startsAt.Add(2 * model.ReservationSlot)
	now := time.Now().Truncate(time.Microsecond)

	row := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*time.Time)) = now
		*(dest[1].(*time.Time)) = now
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(row)

	res, err := svc.Create(ctx, "test-user-1", startsAt, endsAt, "fine-tuning run")
	require.NoError(t, err)
	assert.Equal(t, model.ReservationPending, res.Status)
	assert.Equal(t, startsAt, res.StartsAt)
	assert.Equal(t, endsAt, res.EndsAt)
	assert.Equal(t, "fine-tuning run", res.Reason)
	db.AssertExpectations(t)
}

func TestReservationService_Create_EndBeforeStart(t *testing.T) {
	db := &mockDB{}
	svc := NewReservationService(db)

	startsAt := nextSlot(t)
	res, err := svc.Create(context.Background(), "test-user-1", startsAt, startsAt.Add(-model.ReservationSlot), "")
	require.ErrorIs(t, err, ErrInvalidWindow)
	assert.Nil(t, res)
	db.AssertNotCalled(t, "QueryRow")
}

func TestReservationService_Create_ZeroLengthWindow(t *testing.T) {
	db := &mockDB{}
	svc := NewReservationService(db)

	startsAt := nextSlot(t)
	res, err := svc.Create(context.Background(), "test-user-1", startsAt, startsAt, "")
	require.ErrorIs(t, err, ErrInvalidWindow)
	assert.Nil(t, res)
}

func TestReservationService_Create_Misaligned(t *testing.T) {
	db := &mockDB{}
	svc := NewReservationService(db)

	startsAt := nextSlot(t).Add(7 * time.Minute)
	res, err := svc.Create(context.Background(), "test-user-1", startsAt, startsAt.Add(model.ReservationSlot), "")
	require.ErrorIs(t, err, ErrInvalidWindow)
	assert.Nil(t, res)
}

func TestReservationService_Create_PastWindow(t *testing.T) {
	db := &mockDB{}
	svc := NewReservationService(db)

	startsAt := time.Now().UTC().Truncate(model.ReservationSlot).Add(-4 * model.ReservationSlot)
	res, err := svc.Create(context.Background(), "test-user-1", startsAt, startsAt.Add(model.ReservationSlot), "")
	require.ErrorIs(t, err, ErrInvalidWindow)
	assert.Nil(t, res)
}

func TestReservationService_Create_CurrentSlotAccepted(t *testing.T) {
	db := &mockDB{}
	svc := NewReservationService(db)
	ctx := context.Background()

	// The boundary that just passed is the earliest grid-aligned start a
	// caller reserving immediately can use; it must not read as "past".
	startsAt := time.Now().UTC().Truncate(model.ReservationSlot)
	endsAt := startsAt.Add(model.ReservationSlot)
	now := time.Now().Truncate(time.Microsecond)

	row := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*time.Time)) = now
		*(dest[1].(*time.Time)) = now
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(row)

	res, err := svc.Create(ctx, "test-user-1", startsAt, endsAt, "urgent eval")
	require.NoError(t, err)
	assert.Equal(t, startsAt, res.StartsAt)
	db.AssertExpectations(t)
}

// ---------- Approve ----------

func TestReservationService_Approve_Success(t *testing.T) {
	db := &mockDB{}
	svc := NewReservationService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := svc.Approve(ctx, "test-res-1", "test-admin-1", nil)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestReservationService_Approve_OverlapConflict(t *testing.T) {
	db := &mockDB{}
	svc := NewReservationService(db)
	ctx := context.Background()

	// Zero rows updated while the row is still pending means the in-statement
	// overlap re-check blocked the approval.
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	statusRow := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = model.ReservationPending
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(statusRow)

	err := svc.Approve(ctx, "test-res-1", "test-admin-1", nil)
	require.ErrorIs(t, err, ErrReservationConflict)
	db.AssertExpectations(t)
}

func TestReservationService_Approve_ExclusionViolation(t *testing.T) {
	db := &mockDB{}
	svc := NewReservationService(db)
	ctx := context.Background()

	pgErr := &pgconn.PgError{Code: "23P01"}
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, pgErr)

	err := svc.Approve(ctx, "test-res-1", "test-admin-1", nil)
	require.ErrorIs(t, err, ErrReservationConflict)
	db.AssertExpectations(t)
}

func TestReservationService_Approve_NotFound(t *testing.T) {
	db := &mockDB{}
	svc := NewReservationService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(noRows())

	err := svc.Approve(ctx, "nonexistent-res", "test-admin-1", nil)
	require.ErrorIs(t, err, ErrNotFound)
	db.AssertExpectations(t)
}

func TestReservationService_Approve_WrongState(t *testing.T) {
	db := &mockDB{}
	svc := NewReservationService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	statusRow := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = model.ReservationCancelled
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(statusRow)

	err := svc.Approve(ctx, "test-res-1", "test-admin-1", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrReservationConflict)
	assert.Contains(t, err.Error(), "expected pending")
	db.AssertExpectations(t)
}

// ---------- Reject ----------

func TestReservationService_Reject_Success(t *testing.T) {
	db := &mockDB{}
	svc := NewReservationService(db)
	ctx := context.Background()

	note := "maintenance window that weekend"
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := svc.Reject(ctx, "test-res-1", "test-admin-1", &note)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestReservationService_Reject_NotPending(t *testing.T) {
	db := &mockDB{}
	svc := NewReservationService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	statusRow := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = model.ReservationApproved
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(statusRow)

	err := svc.Reject(ctx, "test-res-1", "test-admin-1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected pending")
	db.AssertExpectations(t)
}

// ---------- Cancel ----------

func TestReservationService_Cancel_Success(t *testing.T) {
	db := &mockDB{}
	svc := NewReservationService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := svc.Cancel(ctx, "test-res-1", "test-user-1")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestReservationService_Cancel_ActiveForbidden(t *testing.T) {
	db := &mockDB{}
	svc := NewReservationService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	statusRow := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = model.ReservationActive
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(statusRow)

	err := svc.Cancel(ctx, "test-res-1", "test-user-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected pending or approved")
	db.AssertExpectations(t)
}

// ---------- Release ----------

func TestReservationService_Release_Success(t *testing.T) {
	db := &mockDB{}
	svc := NewReservationService(db)
	ctx := context.Background()

	note := "released early, run finished"
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := svc.Release(ctx, "test-res-1", &note)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestReservationService_Release_NotActive(t *testing.T) {
	db := &mockDB{}
	svc := NewReservationService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	statusRow := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = model.ReservationCompleted
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(statusRow)

	err := svc.Release(ctx, "test-res-1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected active")
	db.AssertExpectations(t)
}

// ---------- Sweep ----------

func TestReservationService_Sweep(t *testing.T) {
	db := &mockDB{}
	svc := NewReservationService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 2"), nil).Once()
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 1"), nil).Once()

	activated, completed, err := svc.Sweep(ctx, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 2, activated)
	assert.EqualValues(t, 1, completed)
	db.AssertExpectations(t)
}

func TestReservationService_Sweep_ActivateError(t *testing.T) {
	db := &mockDB{}
	svc := NewReservationService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, errors.New("db error"))

	_, _, err := svc.Sweep(ctx, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "activate reservations")
	db.AssertExpectations(t)
}

// ---------- ActiveAt ----------

func TestReservationService_ActiveAt_Found(t *testing.T) {
	db := &mockDB{}
	svc := NewReservationService(db)
	ctx := context.Background()

	now := time.Now().Truncate(time.Microsecond)
	row := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = "test-res-1"
		*(dest[1].(*string)) = "test-user-1"
		*(dest[2].(*time.Time)) = now.Add(-model.ReservationSlot)
		*(dest[3].(*time.Time)) = now.Add(model.ReservationSlot)
		*(dest[4].(*string)) = model.ReservationActive
		*(dest[5].(*string)) = "fine-tuning run"
		*(dest[6].(**string)) = nil // admin_note
		*(dest[7].(**string)) = nil // approved_by
		*(dest[8].(*time.Time)) = now
		*(dest[9].(*time.Time)) = now
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(row)

	res, err := svc.ActiveAt(ctx, now)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "test-user-1", res.UserID)
	db.AssertExpectations(t)
}

func TestReservationService_ActiveAt_None(t *testing.T) {
	db := &mockDB{}
	svc := NewReservationService(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(noRows())

	res, err := svc.ActiveAt(ctx, time.Now())
	require.NoError(t, err)
	assert.Nil(t, res)
	db.AssertExpectations(t)
}

// ---------- List ----------

func TestReservationService_List_StatusFilter(t *testing.T) {
	db := &mockDB{}
	svc := NewReservationService(db)
	ctx := context.Background()

	now := time.Now().Truncate(time.Microsecond)
	rows := newMockRows(
		func(dest ...any) error {
			*(dest[0].(*string)) = "test-res-1"
			*(dest[1].(*string)) = "test-user-1"
			*(dest[2].(*time.Time)) = now
			*(dest[3].(*time.Time)) = now.Add(model.ReservationSlot)
			*(dest[4].(*string)) = model.ReservationPending
			*(dest[5].(*string)) = ""
			*(dest[6].(**string)) = nil
			*(dest[7].(**string)) = nil
			*(dest[8].(*time.Time)) = now
			*(dest[9].(*time.Time)) = now
			return nil
		},
	)
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	result, hasMore, err := svc.List(ctx, model.ReservationPending, 50, "")
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, result, 1)
	assert.Equal(t, model.ReservationPending, result[0].Status)
	db.AssertExpectations(t)
}

func TestReservationService_List_Pagination(t *testing.T) {
	db := &mockDB{}
	svc := NewReservationService(db)
	ctx := context.Background()

	now := time.Now().Truncate(time.Microsecond)
	scan := func(id string) func(dest ...any) error {
		return func(dest ...any) error {
			*(dest[0].(*string)) = id
			*(dest[1].(*string)) = "test-user-1"
			*(dest[2].(*time.Time)) = now
			*(dest[3].(*time.Time)) = now.Add(model.ReservationSlot)
			*(dest[4].(*string)) = model.ReservationPending
			*(dest[5].(*string)) = ""
			*(dest[6].(**string)) = nil
			*(dest[7].(**string)) = nil
			*(dest[8].(*time.Time)) = now
			*(dest[9].(*time.Time)) = now
			return nil
		}
	}
	rows := newMockRows(scan("test-res-1"), scan("test-res-2"), scan("test-res-3"))
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	result, hasMore, err := svc.List(ctx, "", 2, "")
	require.NoError(t, err)
	assert.True(t, hasMore)
	assert.Len(t, result, 2)
	db.AssertExpectations(t)
}

func TestReservationService_List_CursorContinuesFromLastRow(t *testing.T) {
	db := &mockDB{}
	svc := NewReservationService(db)
	ctx := context.Background()

	now := time.Now().Truncate(time.Microsecond)
	scan := func(id string) func(dest ...any) error {
		return func(dest ...any) error {
			*(dest[0].(*string)) = id
			*(dest[1].(*string)) = "test-user-1"
			*(dest[2].(*time.Time)) = now
			*(dest[3].(*time.Time)) = now.Add(model.ReservationSlot)
			*(dest[4].(*string)) = model.ReservationPending
			*(dest[5].(*string)) = ""
			*(dest[6].(**string)) = nil
			*(dest[7].(**string)) = nil
			*(dest[8].(*time.Time)) = now
			*(dest[9].(*time.Time)) = now
			return nil
		}
	}

	page1 := newMockRows(scan("test-res-1"), scan("test-res-2"), scan("test-res-3"))
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(page1, nil).Once()

	first, hasMore, err := svc.List(ctx, "", 2, "")
	require.NoError(t, err)
	require.True(t, hasMore)
	require.Len(t, first, 2)
	cursor := first[len(first)-1].ID

	// The cursor column and the sort column must be the same, otherwise the
	// second page skips and repeats rows instead of continuing.
	page2 := newMockRows(scan("test-res-3"))
	var query string
	var capturedArgs []any
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Run(func(args mock.Arguments) {
		query = args.String(1)
		capturedArgs = args.Get(2).([]any)
	}).Return(page2, nil).Once()

	second, hasMore, err := svc.List(ctx, "", 2, cursor)
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, second, 1)
	assert.Equal(t, "test-res-3", second[0].ID)

	assert.Contains(t, query, "id > $")
	assert.Contains(t, query, "ORDER BY id")
	assert.Equal(t, []any{cursor, 3}, capturedArgs)
	db.AssertExpectations(t)
}

package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/llmgate/internal/crypto"
)

// mockAdmitter implements Admitter for testing.
type mockAdmitter struct {
	mock.Mock
}

func (m *mockAdmitter) Acquire(ctx context.Context, modelID string, capacity int) (bool, error) {
	args := m.Called(ctx, modelID, capacity)
	return args.Bool(0), args.Error(1)
}

func (m *mockAdmitter) Release(ctx context.Context, modelID string) error {
	args := m.Called(ctx, modelID)
	return args.Error(0)
}

func testSecretKey(t *testing.T) []byte {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

// ---------- RegisterStart ----------

func TestContainerService_RegisterStart_Success(t *testing.T) {
	db := &mockDB{}
	key := testSecretKey(t)
	svc := NewContainerService(db, key, 20000, 20999, &mockAdmitter{}, nil)
	ctx := context.Background()

	now := time.Now().Truncate(time.Microsecond)
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("DELETE 0"), nil).Once()
	allocRow := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*int)) = 20000
		*(dest[1].(*time.Time)) = now
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(allocRow)
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 1"), nil).Once()

	secret, rawKey, err := svc.RegisterStart(ctx, "test-model-1", 9001, 4)
	require.NoError(t, err)
	assert.Equal(t, 20000, secret.UID)
	assert.Equal(t, 4, secret.Slots)
	assert.True(t, strings.HasPrefix(rawKey, "lgc_"))

	// The stored key is encrypted, not the raw key, and decrypts back.
	assert.NotEqual(t, rawKey, secret.APIKeyEnc)
	plain, err := crypto.Decrypt(secret.APIKeyEnc, key)
	require.NoError(t, err)
	assert.Equal(t, rawKey, string(plain))
	db.AssertExpectations(t)
}

func TestContainerService_RegisterStart_UIDPoolExhausted(t *testing.T) {
	db := &mockDB{}
	svc := NewContainerService(db, testSecretKey(t), 20000, 20001, &mockAdmitter{}, nil)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("DELETE 0"), nil)
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(noRows())

	secret, rawKey, err := svc.RegisterStart(ctx, "test-model-1", 9001, 4)
	require.ErrorIs(t, err, ErrUIDPoolExhausted)
	assert.Nil(t, secret)
	assert.Empty(t, rawKey)
	db.AssertExpectations(t)
}

func TestContainerService_RegisterStart_RetriesUIDCollision(t *testing.T) {
	db := &mockDB{}
	svc := NewContainerService(db, testSecretKey(t), 20000, 20999, &mockAdmitter{}, nil)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("DELETE 0"), nil).Once()

	// First allocation loses the race on the uid unique index, second wins.
	collisionRow := &mockRow{scanFunc: func(dest ...any) error {
		return &pgconn.PgError{Code: "23505"}
	}}
	winRow := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*int)) = 20001
		*(dest[1].(*time.Time)) = time.Now()
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(collisionRow).Once()
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(winRow).Once()
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 1"), nil).Once()

	secret, _, err := svc.RegisterStart(ctx, "test-model-1", 9001, 4)
	require.NoError(t, err)
	assert.Equal(t, 20001, secret.UID)
	db.AssertExpectations(t)
}

func TestContainerService_RegisterStart_CollisionRetriesBounded(t *testing.T) {
	db := &mockDB{}
	svc := NewContainerService(db, testSecretKey(t), 20000, 20999, &mockAdmitter{}, nil)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("DELETE 0"), nil)
	collisionRow := &mockRow{scanFunc: func(dest ...any) error {
		return &pgconn.PgError{Code: "23505"}
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(collisionRow).Times(3)

	_, _, err := svc.RegisterStart(ctx, "test-model-1", 9001, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allocate container uid")
	db.AssertExpectations(t)
}

// ---------- RegisterStop ----------

func TestContainerService_RegisterStop_Idempotent(t *testing.T) {
	db := &mockDB{}
	svc := NewContainerService(db, testSecretKey(t), 20000, 20999, &mockAdmitter{}, nil)
	ctx := context.Background()

	// Nothing deleted, nothing updated: stopping a stopped model succeeds.
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("DELETE 0"), nil).Once()
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil).Once()

	err := svc.RegisterStop(ctx, "test-model-1")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

// ---------- Live ----------

func TestContainerService_Live_Success(t *testing.T) {
	db := &mockDB{}
	key := testSecretKey(t)
	svc := NewContainerService(db, key, 20000, 20999, &mockAdmitter{}, nil)
	ctx := context.Background()

	enc, err := crypto.Encrypt([]byte("lgc_rawkey"), key)
	require.NoError(t, err)

	row := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = "test-model-1"
		*(dest[1].(*int)) = 20000
		*(dest[2].(*string)) = enc
		*(dest[3].(*int)) = 4
		*(dest[4].(*bool)) = false
		*(dest[5].(*time.Time)) = time.Now()
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(row)

	secret, rawKey, err := svc.Live(ctx, "test-model-1")
	require.NoError(t, err)
	assert.Equal(t, 20000, secret.UID)
	assert.Equal(t, "lgc_rawkey", rawKey)
	db.AssertExpectations(t)
}

func TestContainerService_Live_NotFound(t *testing.T) {
	db := &mockDB{}
	svc := NewContainerService(db, testSecretKey(t), 20000, 20999, &mockAdmitter{}, nil)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(noRows())

	secret, rawKey, err := svc.Live(ctx, "test-model-1")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, secret)
	assert.Empty(t, rawKey)
	db.AssertExpectations(t)
}

// ---------- Recover ----------

func TestContainerService_Recover_MarksUnreachableStale(t *testing.T) {
	db := &mockDB{}
	reachable := map[int]bool{9001: true, 9002: false}
	probe := func(ctx context.Context, port int) error {
		if reachable[port] {
			return nil
		}
		return errors.New("connection refused")
	}
	svc := NewContainerService(db, testSecretKey(t), 20000, 20999, &mockAdmitter{}, probe)
	ctx := context.Background()

	port1, port2 := 9001, 9002
	rows := newMockRows(
		func(dest ...any) error {
			*(dest[0].(*string)) = "test-model-1"
			*(dest[1].(**int)) = &port1
			return nil
		},
		func(dest ...any) error {
			*(dest[0].(*string)) = "test-model-2"
			*(dest[1].(**int)) = &port2
			return nil
		},
	)
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)
	db.On("Exec", ctx, mock.AnythingOfType("string"), []any{"test-model-2"}).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	live, stale, err := svc.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, live)
	assert.Equal(t, 1, stale)
	db.AssertExpectations(t)
}

func TestContainerService_Recover_NoSecrets(t *testing.T) {
	db := &mockDB{}
	svc := NewContainerService(db, testSecretKey(t), 20000, 20999, &mockAdmitter{}, nil)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(newEmptyMockRows(), nil)

	live, stale, err := svc.Recover(ctx)
	require.NoError(t, err)
	assert.Zero(t, live)
	assert.Zero(t, stale)
	db.AssertExpectations(t)
}

// ---------- AdmitRequest ----------

func TestContainerService_AdmitRequest_Success(t *testing.T) {
	db := &mockDB{}
	adm := &mockAdmitter{}
	svc := NewContainerService(db, testSecretKey(t), 20000, 20999, adm, nil)
	ctx := context.Background()

	slotsRow := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*int)) = 4
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(slotsRow)
	adm.On("Acquire", ctx, "test-model-1", 4).Return(true, nil)

	err := svc.AdmitRequest(ctx, "test-model-1")
	require.NoError(t, err)
	db.AssertExpectations(t)
	adm.AssertExpectations(t)
}

func TestContainerService_AdmitRequest_Saturated(t *testing.T) {
	db := &mockDB{}
	adm := &mockAdmitter{}
	svc := NewContainerService(db, testSecretKey(t), 20000, 20999, adm, nil)
	ctx := context.Background()

	slotsRow := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*int)) = 2
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(slotsRow)
	adm.On("Acquire", ctx, "test-model-1", 2).Return(false, nil)

	err := svc.AdmitRequest(ctx, "test-model-1")
	require.ErrorIs(t, err, ErrBackendSaturated)
	adm.AssertExpectations(t)
}

func TestContainerService_AdmitRequest_StaleBackend(t *testing.T) {
	db := &mockDB{}
	adm := &mockAdmitter{}
	svc := NewContainerService(db, testSecretKey(t), 20000, 20999, adm, nil)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(noRows())

	err := svc.AdmitRequest(ctx, "test-model-1")
	require.ErrorIs(t, err, ErrNoEligibleModel)
	adm.AssertNotCalled(t, "Acquire")
}

func TestContainerService_ReleaseRequest(t *testing.T) {
	adm := &mockAdmitter{}
	svc := NewContainerService(&mockDB{}, testSecretKey(t), 20000, 20999, adm, nil)
	ctx := context.Background()

	adm.On("Release", ctx, "test-model-1").Return(nil)

	err := svc.ReleaseRequest(ctx, "test-model-1")
	require.NoError(t, err)
	adm.AssertExpectations(t)
}

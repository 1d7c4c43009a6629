package txn_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aniket1251/opd-token-allocation-engine/internal/civildate"
	"github.com/aniket1251/opd-token-allocation-engine/internal/doctor"
	"github.com/aniket1251/opd-token-allocation-engine/internal/slot"
	"github.com/aniket1251/opd-token-allocation-engine/internal/storage"
	"github.com/aniket1251/opd-token-allocation-engine/internal/token"
	"github.com/aniket1251/opd-token-allocation-engine/internal/txn"
	"github.com/aniket1251/opd-token-allocation-engine/pkg/circuit"
)

type fakeTx struct{ committed, rolledBack bool }

func (f *fakeTx) GetDoctor(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error) { return nil, nil }
func (f *fakeTx) GetSlotForUpdate(ctx context.Context, id uuid.UUID) (*slot.Slot, error) {
	return nil, nil
}
func (f *fakeTx) ListActiveSlotsForDoctorDate(ctx context.Context, id uuid.UUID, d civildate.Date) ([]*slot.Slot, error) {
	return nil, nil
}
func (f *fakeTx) UpdateSlot(ctx context.Context, s *slot.Slot) error { return nil }
func (f *fakeTx) ListAllocatedTokensForSlot(ctx context.Context, id uuid.UUID) ([]*token.Token, error) {
	return nil, nil
}
func (f *fakeTx) ListWaitingTokensForDoctorDate(ctx context.Context, id uuid.UUID, d civildate.Date) ([]*token.Token, error) {
	return nil, nil
}
func (f *fakeTx) GetTokenByIdempotencyKey(ctx context.Context, key string) (*token.Token, error) {
	return nil, nil
}
func (f *fakeTx) GetToken(ctx context.Context, id uuid.UUID) (*token.Token, error) { return nil, nil }
func (f *fakeTx) InsertToken(ctx context.Context, t *token.Token) error            { return nil }
func (f *fakeTx) UpdateToken(ctx context.Context, t *token.Token) error            { return nil }
func (f *fakeTx) NextSequence(ctx context.Context, kind, scopeKey string) (int64, error) {
	return 1, nil
}
func (f *fakeTx) Commit() error   { f.committed = true; return nil }
func (f *fakeTx) Rollback() error { f.rolledBack = true; return nil }

type fakeStore struct {
	beginCount int
	failFirstN int
}

func (s *fakeStore) BeginTx(ctx context.Context) (storage.Tx, error) {
	s.beginCount++
	return &fakeTx{}, nil
}
func (s *fakeStore) ListActiveDoctors(ctx context.Context) ([]*doctor.Doctor, error) { return nil, nil }
func (s *fakeStore) Close() error                                                    { return nil }

func newOrchestrator(store storage.Store) *txn.Orchestrator {
	breakers := circuit.NewBreakerGroup(circuit.Config{MaxFailures: 100, Timeout: time.Second, HalfOpenMax: 1})
	o := txn.NewOrchestrator(store, txn.NewLocalLockManager(), breakers)
	o.Retry = txn.RetryPolicy{MaxAttempts: 4, BaseDelay: time.Millisecond}
	return o
}

func TestRunCommitsOnSuccess(t *testing.T) {
	store := &fakeStore{}
	o := newOrchestrator(store)

	result, err := o.Run(context.Background(), uuid.New(), mustDate(t), func(ctx context.Context, tx storage.Tx) (interface{}, error) {
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, store.beginCount)
}

func TestRunRetriesOnStorageConflict(t *testing.T) {
	store := &fakeStore{}
	o := newOrchestrator(store)

	attempts := 0
	result, err := o.Run(context.Background(), uuid.New(), mustDate(t), func(ctx context.Context, tx storage.Tx) (interface{}, error) {
		attempts++
		if attempts < 3 {
			return nil, storage.ErrConflict
		}
		return "recovered", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, 3, attempts)
}

func TestRunDoesNotRetryNonConflictErrors(t *testing.T) {
	store := &fakeStore{}
	o := newOrchestrator(store)

	attempts := 0
	_, err := o.Run(context.Background(), uuid.New(), mustDate(t), func(ctx context.Context, tx storage.Tx) (interface{}, error) {
		attempts++
		return nil, assert.AnError
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func mustDate(t *testing.T) civildate.Date {
	t.Helper()
	d, err := civildate.ParseDate("05-03-2026")
	require.NoError(t, err)
	return d
}

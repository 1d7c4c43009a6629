package cache_test

import (
	"context"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aniket1251/opd-token-allocation-engine/internal/cache"
	"github.com/aniket1251/opd-token-allocation-engine/internal/civildate"
)

type countingLoader struct {
	calls int
}

func (l *countingLoader) Load(ctx context.Context, doctorID uuid.UUID, date civildate.Date) (*cache.DoctorDateSnapshot, error) {
	l.calls++
	return &cache.DoctorDateSnapshot{DoctorID: doctorID, Date: date.String(), WaitingCount: l.calls}, nil
}

// newTestStore points at a loopback address nothing is listening on, so
// every Redis round trip fails fast with connection-refused. This
// exercises the store's Redis-optional fallback path (the in-process map
// plus loader) without standing up a real Redis server in tests.
func newTestStore(t *testing.T) *cache.Store {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { client.Close() })
	return cache.NewStore(client)
}

func TestGetLoadsOnceAndServesFromLocalCache(t *testing.T) {
	store := newTestStore(t)
	loader := &countingLoader{}
	doctorID := uuid.New()
	date, err := civildate.ParseDate("05-03-2026")
	require.NoError(t, err)

	first, err := store.Get(context.Background(), doctorID, date, loader)
	require.NoError(t, err)
	assert.Equal(t, 1, first.WaitingCount)

	second, err := store.Get(context.Background(), doctorID, date, loader)
	require.NoError(t, err)
	assert.Equal(t, 1, second.WaitingCount, "second Get should be served from the in-process cache, not reload")
	assert.Equal(t, 1, loader.calls)
}

func TestInvalidateForcesReload(t *testing.T) {
	store := newTestStore(t)
	loader := &countingLoader{}
	doctorID := uuid.New()
	date, err := civildate.ParseDate("05-03-2026")
	require.NoError(t, err)

	_, err = store.Get(context.Background(), doctorID, date, loader)
	require.NoError(t, err)

	store.Invalidate(context.Background(), doctorID, date)

	second, err := store.Get(context.Background(), doctorID, date, loader)
	require.NoError(t, err)
	assert.Equal(t, 2, second.WaitingCount)
	assert.Equal(t, 2, loader.calls)
}

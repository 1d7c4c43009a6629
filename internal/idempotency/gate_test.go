package idempotency_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aniket1251/opd-token-allocation-engine/internal/idempotency"
)

func TestDoCollapsesConcurrentCallsForSameKey(t *testing.T) {
	g := idempotency.NewGate()
	var calls int32

	var wg sync.WaitGroup
	results := make([]interface{}, 5)
	sharedFlags := make([]bool, 5)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, shared, err := g.Do("same-key", func() (interface{}, error) {
				atomic.AddInt32(&calls, 1)
				time.Sleep(10 * time.Millisecond)
				return "token-1", nil
			})
			require.NoError(t, err)
			results[i] = v
			sharedFlags[i] = shared
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "only one call should have executed fn")
	for _, v := range results {
		assert.Equal(t, "token-1", v)
	}
}

func TestDoRunsIndependentlyForDifferentKeys(t *testing.T) {
	g := idempotency.NewGate()
	var calls int32

	v1, _, err := g.Do("key-a", func() (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "a", nil
	})
	require.NoError(t, err)

	v2, _, err := g.Do("key-b", func() (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "b", nil
	})
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, "a", v1)
	assert.Equal(t, "b", v2)
}

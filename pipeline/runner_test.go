package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Normalized(t *testing.T) {
	assert.Equal(t, DefaultOptions(), Options{}.normalized())
	assert.Equal(t, Options{Concurrency: 4, CallTimeout: time.Second}, Options{Concurrency: 4, CallTimeout: time.Second}.normalized())
	assert.Equal(t, DefaultOptions(), Options{Concurrency: -3, CallTimeout: -time.Second}.normalized())
}

func TestRunIndexed_PreservesOrder(t *testing.T) {
	results := runIndexed(context.Background(), 20, 5, func(_ context.Context, i int) (string, error) {
		// 让后面的任务先完成
		time.Sleep(time.Duration(20-i) * time.Millisecond)
		return fmt.Sprintf("item-%d", i), nil
	})
	require.Len(t, results, 20)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, fmt.Sprintf("item-%d", i), r.Value)
		assert.NoError(t, r.Err)
	}
}

func TestRunIndexed_RespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	runIndexed(context.Background(), 30, 3, func(_ context.Context, i int) (int, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return i, nil
	})
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestRunIndexed_FailureIsIsolated(t *testing.T) {
	boom := errors.New("boom")
	results := runIndexed(context.Background(), 5, 2, func(_ context.Context, i int) (int, error) {
		if i == 2 {
			return 0, boom
		}
		return i * 10, nil
	})
	for i, r := range results {
		if i == 2 {
			assert.ErrorIs(t, r.Err, boom)
			continue
		}
		assert.NoError(t, r.Err)
		assert.Equal(t, i*10, r.Value)
	}
}

func TestRunIndexed_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	results := runIndexed(ctx, 4, 1, func(_ context.Context, i int) (int, error) {
		calls.Add(1)
		return i, nil
	})
	assert.Equal(t, int32(0), calls.Load())
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestRunIndexed_CancelStopsScheduling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := runIndexed(ctx, 10, 1, func(_ context.Context, i int) (int, error) {
		if i == 1 {
			cancel()
		}
		return i, nil
	})
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	for _, r := range results[2:] {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestRunIndexed_Zero(t *testing.T) {
	assert.Empty(t, runIndexed(context.Background(), 0, 4, func(context.Context, int) (int, error) {
		t.Fatal("must not be called")
		return 0, nil
	}))
}

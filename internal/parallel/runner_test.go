package parallel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWindowedDoublesInOrder(t *testing.T) {
	inputs := []int{1, 2, 3, 4, 5}

	results := RunWindowed(context.Background(), inputs, 2, func(_ context.Context, n int) (int, error) {
		return n * 2, nil
	})

	require.Len(t, results, 5)
	for i, want := range []int{2, 4, 6, 8, 10} {
		require.NoError(t, results[i].Err)
		assert.Equal(t, want, results[i].Value)
	}
}

func TestRunnersPreserveOrderUnderVaryingDurations(t *testing.T) {
	inputs := make([]int, 20)
	for i := range inputs {
		inputs[i] = i
	}

	// Later items finish first; order must still follow the input.
	fn := func(_ context.Context, n int) (int, error) {
		time.Sleep(time.Duration(20-n) * time.Millisecond)
		return n, nil
	}

	for _, runner := range []struct {
		run  func(context.Context, []int, int, func(context.Context, int) (int, error)) []Result[int]
		name string
	}{
		{name: "windowed", run: RunWindowed[int, int]},
		{name: "sliding", run: RunSliding[int, int]},
	} {
		t.Run(runner.name, func(t *testing.T) {
			results := runner.run(context.Background(), inputs, 4, fn)
			require.Len(t, results, len(inputs))
			for i, res := range results {
				require.NoError(t, res.Err)
				assert.Equal(t, i, res.Value)
			}
		})
	}
}

func TestRunnersRespectConcurrencyCeiling(t *testing.T) {
	const limit = 3
	inputs := make([]int, 30)

	for _, runner := range []struct {
		run  func(context.Context, []int, int, func(context.Context, int) (int, error)) []Result[int]
		name string
	}{
		{name: "windowed", run: RunWindowed[int, int]},
		{name: "sliding", run: RunSliding[int, int]},
	} {
		t.Run(runner.name, func(t *testing.T) {
			var inFlight, peak int64
			var mu sync.Mutex

			runner.run(context.Background(), inputs, limit, func(_ context.Context, n int) (int, error) {
				current := atomic.AddInt64(&inFlight, 1)
				mu.Lock()
				if current > peak {
					peak = current
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt64(&inFlight, -1)
				return n, nil
			})

			mu.Lock()
			defer mu.Unlock()
			assert.LessOrEqual(t, peak, int64(limit))
			assert.Greater(t, peak, int64(1), "expected actual parallelism")
		})
	}
}

func TestRunnersCollectAllFailures(t *testing.T) {
	inputs := []int{0, 1, 2, 3, 4, 5}
	boom := errors.New("boom")

	fn := func(_ context.Context, n int) (int, error) {
		if n%2 == 1 {
			return 0, fmt.Errorf("item %d: %w", n, boom)
		}
		return n * 10, nil
	}

	results := RunSliding(context.Background(), inputs, 2, fn)

	require.Len(t, results, len(inputs))
	for i, res := range results {
		if i%2 == 1 {
			require.ErrorIs(t, res.Err, boom)
		} else {
			require.NoError(t, res.Err)
			assert.Equal(t, i*10, res.Value)
		}
	}
}

func TestRunnersStopIssuingOnCancel(t *testing.T) {
	inputs := make([]int, 50)
	ctx, cancel := context.WithCancel(context.Background())

	var started int64
	fn := func(_ context.Context, n int) (int, error) {
		if atomic.AddInt64(&started, 1) == 3 {
			cancel()
		}
		time.Sleep(2 * time.Millisecond)
		return n, nil
	}

	results := RunSliding(ctx, inputs, 1, fn)

	require.Len(t, results, len(inputs))
	assert.Less(t, atomic.LoadInt64(&started), int64(len(inputs)))

	var cancelled int
	for _, res := range results {
		if errors.Is(res.Err, context.Canceled) {
			cancelled++
		}
	}
	assert.Greater(t, cancelled, 0, "unstarted items carry the cancellation cause")
}

func TestRunWindowedEmptyAndZeroLimit(t *testing.T) {
	assert.Empty(t, RunWindowed(context.Background(), nil, 4, func(_ context.Context, n int) (int, error) {
		return n, nil
	}))

	// A limit below one degrades to sequential execution.
	results := RunWindowed(context.Background(), []int{7}, 0, func(_ context.Context, n int) (int, error) {
		return n, nil
	})
	require.Len(t, results, 1)
	assert.Equal(t, 7, results[0].Value)
}

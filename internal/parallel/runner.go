// Package parallel provides bounded-concurrency fan-out over ordered
// inputs. Both runners preserve input order in the result slice and
// capture failures per item instead of aborting siblings.
package parallel

import (
	"context"
	"sync"
)

// Result holds the outcome for one input index: either a value or the
// captured failure. Exactly one of Err / Value is meaningful.
type Result[T any] struct {
	Err   error
	Value T
}

// RunWindowed partitions inputs into chunks of at most limit items. Each
// chunk runs fully concurrently and the runner waits for the whole chunk
// to settle before starting the next. Peak concurrency equals limit
// whenever len(inputs) >= limit.
func RunWindowed[In, Out any](ctx context.Context, inputs []In, limit int, fn func(context.Context, In) (Out, error)) []Result[Out] {
	if limit < 1 {
		limit = 1
	}
	results := make([]Result[Out], len(inputs))

	for start := 0; start < len(inputs); start += limit {
		end := start + limit
		if end > len(inputs) {
			end = len(inputs)
		}

		if err := ctx.Err(); err != nil {
			// Stop issuing new chunks; unstarted items carry the
			// cancellation cause.
			for i := start; i < len(inputs); i++ {
				results[i].Err = err
			}
			return results
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				results[idx].Value, results[idx].Err = fn(ctx, inputs[idx])
			}(i)
		}
		wg.Wait()
	}

	return results
}

// RunSliding keeps exactly limit operations in flight while work
// remains: as soon as one completes, the next queued input starts,
// independent of chunk boundaries. Same ordering guarantee and
// concurrency ceiling as RunWindowed, higher throughput when task
// durations vary.
func RunSliding[In, Out any](ctx context.Context, inputs []In, limit int, fn func(context.Context, In) (Out, error)) []Result[Out] {
	if limit < 1 {
		limit = 1
	}
	results := make([]Result[Out], len(inputs))

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i := range inputs {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(inputs); j++ {
				results[j].Err = err
			}
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx].Value, results[idx].Err = fn(ctx, inputs[idx])
		}(i)
	}

	wg.Wait()
	return results
}

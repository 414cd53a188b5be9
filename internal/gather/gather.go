// Package gather runs a batch of tasks on a bounded worker set and collects one outcome per task.
// A failing or panicking task never affects the others.
package gather

import (
	"context"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

type Task[T any] func(ctx context.Context) (T, error)

// Result is the settled outcome of one task. Index is the task's position in the input batch.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// All starts every task with at most maxConcurrent running at once and blocks until all have settled.
// Results are returned in task order.
func All[T any](ctx context.Context, maxConcurrent int, tasks []Task[T]) []Result[T] {
	results := make([]Result[T], len(tasks))
	if len(tasks) == 0 {
		return results
	}
	if maxConcurrent <= 0 || maxConcurrent > len(tasks) {
		maxConcurrent = len(tasks)
	}

	p := pool.New().WithMaxGoroutines(maxConcurrent)
	for i, task := range tasks {
		p.Go(func() {
			results[i] = settle(ctx, i, task)
		})
	}
	p.Wait()

	return results
}

func settle[T any](ctx context.Context, index int, task Task[T]) Result[T] {
	res := Result[T]{Index: index}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	var pc panics.Catcher
	pc.Try(func() {
		res.Value, res.Err = task(ctx)
	})
	if r := pc.Recovered(); r != nil {
		var zero T
		res.Value = zero
		res.Err = r.AsError()
	}
	return res
}

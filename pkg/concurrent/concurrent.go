package concurrent

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Batch splits items into at most workers contiguous chunks and runs action over each
// chunk in its own goroutine. Elements of one chunk are processed in order. The first
// error cancels the context passed to the remaining calls and is returned.
func Batch[T any](ctx context.Context, items []T, workers int, action func(context.Context, T) error) error {
	if len(items) == 0 {
		return nil
	}
	if workers <= 0 || workers > len(items) {
		workers = len(items)
	}
	size := (len(items) + workers - 1) / workers

	group, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(items); start += size {
		chunk := items[start:min(start+size, len(items))]
		group.Go(func() error {
			for _, item := range chunk {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := action(ctx, item); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return group.Wait()
}

// Limit runs action for every element with at most limit goroutines in flight.
// It returns the first error after all started calls have finished.
func Limit[T any](ctx context.Context, items []T, limit int, action func(context.Context, T) error) error {
	group, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		group.SetLimit(limit)
	}
	for _, item := range items {
		group.Go(func() error {
			return action(ctx, item)
		})
	}
	return group.Wait()
}

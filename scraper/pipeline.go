package scraper

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// PauseFunc waits d or until ctx is done, whichever comes first.
type PauseFunc func(ctx context.Context, d time.Duration) error

// Sleep is the production PauseFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runPaced calls fn for each index in [0, n) with delay between consecutive
// starts and no delay after the last one. With workers > 1 the calls overlap
// on a bounded pool; fn must only write to its own index. A cancelled ctx
// stops dispatch and its error is returned after in-flight calls finish.
func runPaced(ctx context.Context, n, workers int, delay time.Duration, pause PauseFunc, fn func(ctx context.Context, i int)) error {
	if workers <= 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(ctx, i)
			if i < n-1 {
				if err := pause(ctx, delay); err != nil {
					return err
				}
			}
		}
		return ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var dispatchErr error
	for i := 0; i < n; i++ {
		if i > 0 {
			if err := pause(ctx, delay); err != nil {
				dispatchErr = err
				break
			}
		}
		if err := ctx.Err(); err != nil {
			dispatchErr = err
			break
		}
		i := i
		g.Go(func() error {
			fn(gctx, i)
			return nil
		})
	}

	g.Wait()
	if dispatchErr != nil {
		return dispatchErr
	}
	return ctx.Err()
}

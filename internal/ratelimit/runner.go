package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Runner spaces calls to third-party services by a fixed interval.
// A single Runner is shared by the sequential steps of one batch; it is not a lock.
type Runner struct {
	limiter *rate.Limiter
}

// NewRunner returns a Runner that allows one call per interval.
// An interval <= 0 runs calls back to back.
func NewRunner(interval time.Duration) *Runner {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Runner{limiter: rate.NewLimiter(limit, 1)}
}

// Do waits for the next slot, then calls fn. If ctx ends while waiting, fn is not called.
func (r *Runner) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return fn(ctx)
}

// Package resilience applies one retry policy around extraction operations:
// bounded attempts, exponential backoff with a cap, optional jitter and a
// per-attempt timeout. Only errors classified retryable by fault are
// repeated; everything else returns immediately.
package resilience

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/hazyhaar/profilex/fault"
)

// Policy configures retries for a single operation.
type Policy struct {
	// MaxAttempts including the first one. Default: 3.
	MaxAttempts int
	// BaseDelay before the second attempt; doubles each retry. Default: 500ms.
	BaseDelay time.Duration
	// MaxDelay caps the backoff. Default: 10s.
	MaxDelay time.Duration
	// AttemptTimeout bounds each attempt. Zero leaves the parent deadline.
	AttemptTimeout time.Duration
	// Jitter adds up to this fraction of the delay at random (0..1).
	Jitter float64

	Logger *slog.Logger
}

func (p *Policy) defaults() {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
}

// Delay returns the wait before attempt n (n >= 2), without jitter.
func (p Policy) Delay(n int) time.Duration {
	p.defaults()
	if n < 2 {
		return 0
	}
	d := p.BaseDelay
	for i := 2; i < n; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return min(d, p.MaxDelay)
}

// Do runs op until it succeeds, fails with a non-retryable error, the
// attempts are exhausted or ctx is done. The last error is returned.
func (p Policy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	_, err := Retry(ctx, p, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Retry is Do for operations returning a value.
func Retry[T any](ctx context.Context, p Policy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	p.defaults()
	var (
		zero T
		err  error
	)
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			d := p.Delay(attempt)
			if p.Jitter > 0 {
				d += time.Duration(rand.Float64() * p.Jitter * float64(d))
			}
			p.Logger.Debug("resilience: retrying", "op", name, "attempt", attempt, "delay", d, "error", err)
			if werr := sleep(ctx, d); werr != nil {
				return zero, fault.Wrap(werr, fault.ErrTimeout, "resilience: "+name)
			}
		}

		var v T
		v, err = runAttempt(ctx, p.AttemptTimeout, op)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, fault.Wrap(err, fault.ErrTimeout, "resilience: "+name)
		}
		if !fault.Retryable(err) {
			return zero, err
		}
	}
	p.Logger.Warn("resilience: attempts exhausted", "op", name, "attempts", p.MaxAttempts, "error", err)
	return zero, err
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	v, err := op(actx)
	if err != nil && actx.Err() != nil && ctx.Err() == nil {
		// The attempt, not the caller, ran out of time.
		err = fault.Wrap(err, fault.ErrTimeout, "attempt timed out")
	}
	return v, err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

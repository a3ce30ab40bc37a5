package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	apperrors "ephemera/pkg/errors"
)

// RetryPolicy bounds the per-call retry of transient failures.
type RetryPolicy struct {
	Attempts uint64
	Base     time.Duration
	Max      time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Base: 150 * time.Millisecond, Max: 2 * time.Second}
}

func (p RetryPolicy) backoff() retry.Backoff {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}
	b := retry.NewExponential(p.Base)
	b = retry.WithJitterPercent(20, b)
	if p.Max > 0 {
		b = retry.WithCappedDuration(p.Max, b)
	}
	return retry.WithMaxRetries(attempts-1, b)
}

// do runs fn until it succeeds, fails with a non-transient error, or the
// attempts are spent. The last error is returned unwrapped.
func (p RetryPolicy) do(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		var f final
		if errors.As(err, &f) {
			return f.error
		}
		if err != nil && apperrors.IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// final ends the retry loop with an error whatever its code.
type final struct{ error }

func (f final) Unwrap() error { return f.error }

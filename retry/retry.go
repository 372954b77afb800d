// Package retry wraps github.com/cenkalti/backoff/v4 with the bounded
// exponential-backoff policy every chain-RPC and bulletin call in this
// module retries under.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retry loop by both attempt count and wall-clock time, as
// required by the error-handling design: retries are bounded, never
// unbounded background churn.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxRetries      uint64
}

// DefaultPolicy mirrors the conservative bound the original signer's
// backoff-crate usage applied to its chain-RPC and bulletin calls.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxElapsedTime:  2 * time.Minute,
		MaxRetries:      8,
	}
}

func (p Policy) backoff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = p.MaxElapsedTime
	var b backoff.BackOff = eb
	if p.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, p.MaxRetries)
	}
	return backoff.WithContext(b, ctx)
}

// Permanent marks err as non-retryable: the retry loop returns it
// immediately instead of continuing to back off. Chain-RPC and bulletin
// clients use this for errors that are not connectivity failures (bad
// request, auth rejection) so callers don't burn the retry budget on
// errors that will never succeed.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do runs fn under policy's exponential-backoff schedule, retrying any
// error fn returns that was not wrapped with Permanent.
func Do(ctx context.Context, policy Policy, fn func() error) error {
	return backoff.Retry(fn, policy.backoff(ctx))
}

// DoValue runs fn under policy's schedule and returns its successful
// result, for the common case of an RPC call that produces a value.
func DoValue[T any](ctx context.Context, policy Policy, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, policy, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

package engine

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	fetchRetryInterval = 5 * time.Second
	fetchMaxRetries    = 2
	fetchStepTimeout   = 30 * time.Second

	emailInitialInterval = 10 * time.Second
	emailMaxRetries      = 3
)

// fetchBackoff returns the fetch step's retry policy: linear, 2 retries
// at a constant 5s interval, per spec.md §4.2.
func fetchBackoff(ctx context.Context) backoff.BackOff {
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(fetchRetryInterval), fetchMaxRetries)
	return backoff.WithContext(bo, ctx)
}

// emailBackoff returns the email step's retry policy: exponential from
// 10s, 3 retries.
func emailBackoff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = emailInitialInterval

	bo := backoff.WithMaxRetries(eb, emailMaxRetries)
	return backoff.WithContext(bo, ctx)
}

// retryFetch runs fn under rt's fetch retry policy (fetchBackoff unless
// overridden), additionally bounding each individual attempt to
// fetchStepTimeout.
func (rt *Runtime) retryFetch(ctx context.Context, fn func(context.Context) error) error {
	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, fetchStepTimeout)
		defer cancel()

		return fn(attemptCtx)
	}

	bo := fetchBackoff(ctx)
	if rt.FetchBackoff != nil {
		bo = rt.FetchBackoff(ctx)
	}

	return backoff.Retry(operation, bo)
}

// retryEmail runs fn under rt's email retry policy (emailBackoff unless
// overridden).
func (rt *Runtime) retryEmail(ctx context.Context, fn func(context.Context) error) error {
	bo := emailBackoff(ctx)
	if rt.EmailBackoff != nil {
		bo = rt.EmailBackoff(ctx)
	}

	return backoff.Retry(func() error { return fn(ctx) }, bo)
}

package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"time"
)

// APIError wraps a provider error with its HTTP status so retry logic can
// classify it without importing vendor SDKs.
type APIError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error (status %d): %v", e.Provider, e.StatusCode, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// Retryable reports whether the status indicates a transient failure.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 408 || e.StatusCode == 429 || e.StatusCode >= 500
}

// IsRetryable classifies err as transient. Context cancellation is never retried.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// RetryPolicy configures retry behavior with exponential backoff.
type RetryPolicy struct {
	MaxRetries        int           // retry attempts after the initial call
	BaseDelay         time.Duration // delay before the first retry
	MaxDelay          time.Duration // upper bound for any delay
	BackoffMultiplier float64
	Jitter            bool // +/- 50% random jitter
	OnRetry           func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns a policy with 3 retries starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// Delay calculates the delay before retry attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	mult := p.BackoffMultiplier
	if mult <= 0 {
		mult = 2.0
	}
	delay := math.Min(float64(p.BaseDelay)*math.Pow(mult, float64(attempt)), float64(p.MaxDelay))
	if p.Jitter {
		delay *= 0.5 + rand.Float64() // #nosec G404 -- jitter only
	}
	return time.Duration(delay)
}

type retryModel struct {
	Model
	policy RetryPolicy
}

// WithRetry wraps m so transient failures are retried per policy. A stream
// that already produced partial output is never retried, so callers never see
// duplicated deltas.
func WithRetry(m Model, policy RetryPolicy) Model {
	return &retryModel{Model: m, policy: policy}
}

// Generate implements Model.
func (r *retryModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	out := make(chan Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		for attempt := 0; ; attempt++ {
			forwarded, err := r.attempt(ctx, req, out)
			if err == nil {
				return
			}

			if forwarded || attempt >= r.policy.MaxRetries || !IsRetryable(err) {
				errCh <- err
				return
			}

			delay := r.policy.Delay(attempt)
			if r.policy.OnRetry != nil {
				r.policy.OnRetry(err, attempt+1, delay)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				errCh <- ctx.Err()
				return
			case <-timer.C:
			}
		}
	}()

	return out, errCh
}

// attempt runs one generation forwarding all responses; it reports whether
// anything was forwarded before the error.
func (r *retryModel) attempt(ctx context.Context, req Request, out chan<- Response) (bool, error) {
	respCh, innerErrCh := r.Model.Generate(ctx, req)
	forwarded := false

	for respCh != nil || innerErrCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			forwarded = forwarded || resp.Partial
			select {
			case out <- resp:
			case <-ctx.Done():
				return forwarded, ctx.Err()
			}
		case err, ok := <-innerErrCh:
			if !ok {
				innerErrCh = nil
				continue
			}
			if err != nil {
				return forwarded, err
			}
		}
	}

	return forwarded, nil
}

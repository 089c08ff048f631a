package run

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/pitabwire/util"

	"github.com/antinvestor/reviewer/internal/githost"
	"github.com/antinvestor/reviewer/internal/llm"
)

// RetryPolicy bounds the backoff loop around an external call.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the documented defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	return p
}

// Classifier buckets an error for the retry loop.
type Classifier func(error) githost.ErrorClass

// WithRetry wraps one external call with the shared retry discipline:
// transient and rate-limited failures back off exponentially with
// jitter up to MaxAttempts; an auth failure triggers refresh once and
// retries immediately; fatal failures return without retrying. refresh
// may be nil, in which case auth failures are final.
func WithRetry(
	ctx context.Context,
	policy RetryPolicy,
	classify Classifier,
	refresh func(),
	op func(ctx context.Context) error,
) error {
	policy = policy.normalized()
	log := util.Log(ctx)

	refreshed := false
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		switch classify(lastErr) {
		case githost.ClassFatal:
			return lastErr

		case githost.ClassAuth:
			if refreshed || refresh == nil {
				return lastErr
			}
			log.WithError(lastErr).Info("auth failure, refreshing credentials")
			refresh()
			refreshed = true
			// refresh does not consume an attempt
			attempt--
			continue

		case githost.ClassTransient, githost.ClassRateLimited:
			if attempt == policy.MaxAttempts {
				return lastErr
			}
			delay := backoff(policy, attempt)
			log.WithError(lastErr).Warn("external call failed, backing off",
				"attempt", attempt,
				"delay", delay,
			)
			select {
			case <-ctx.Done():
				return errors.Join(ctx.Err(), lastErr)
			case <-time.After(delay):
			}
		}
	}

	return lastErr
}

// backoff is exponential with half-width jitter, capped at MaxDelay.
func backoff(policy RetryPolicy, attempt int) time.Duration {
	delay := policy.BaseDelay << (attempt - 1)
	if delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	delay = delay/2 + jitter
	if delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	return delay
}

// ClassifyCompletion buckets completion-service errors into the shared
// taxonomy. Context-too-long and quota errors are not retryable; a
// larger prompt will not fit on the next attempt either.
func ClassifyCompletion(err error) githost.ErrorClass {
	switch {
	case err == nil:
		return githost.ClassTransient
	case errors.Is(err, llm.ErrRateLimited):
		return githost.ClassRateLimited
	case errors.Is(err, llm.ErrAuth), errors.Is(err, llm.ErrNoAPIKey):
		return githost.ClassAuth
	case errors.Is(err, llm.ErrContextTooLong),
		errors.Is(err, llm.ErrQuotaExceeded),
		errors.Is(err, llm.ErrInvalidResponse):
		return githost.ClassFatal
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return githost.ClassFatal
	default:
		return githost.ClassTransient
	}
}

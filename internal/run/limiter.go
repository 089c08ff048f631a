package run

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// AdmissionLimiters are the two process-wide token buckets gating the
// external suspension points: one for the hosting API, one for the
// completion API. A run waits at the relevant gate immediately before
// each call and never holds a token across any other suspension.
type AdmissionLimiters struct {
	host       *rate.Limiter
	completion *rate.Limiter
}

// NewAdmissionLimiters builds limiters from the externally documented
// service limits. Zero or negative values mean unlimited.
func NewAdmissionLimiters(hostPerHour, completionPerMinute int) *AdmissionLimiters {
	return &AdmissionLimiters{
		host:       newLimiter(hostPerHour, time.Hour),
		completion: newLimiter(completionPerMinute, time.Minute),
	}
}

func newLimiter(n int, per time.Duration) *rate.Limiter {
	if n <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := n / 10
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(n)/per.Seconds()), burst)
}

// WaitHost blocks until a hosting-API token is granted.
func (l *AdmissionLimiters) WaitHost(ctx context.Context) error {
	if err := l.host.Wait(ctx); err != nil {
		return fmt.Errorf("host limiter: %w", err)
	}
	return nil
}

// WaitCompletion blocks until a completion-API token is granted.
func (l *AdmissionLimiters) WaitCompletion(ctx context.Context) error {
	if err := l.completion.Wait(ctx); err != nil {
		return fmt.Errorf("completion limiter: %w", err)
	}
	return nil
}

package githost

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/google/go-github/v68/github"
)

// ErrorClass buckets host API failures by how the caller should react.
type ErrorClass string

const (
	// ClassTransient failures are worth retrying with backoff.
	ClassTransient ErrorClass = "transient"

	// ClassRateLimited failures must wait for the limiter window.
	ClassRateLimited ErrorClass = "rate-limited"

	// ClassAuth failures get one credential refresh, then fail.
	ClassAuth ErrorClass = "auth"

	// ClassFatal failures are not retried at all.
	ClassFatal ErrorClass = "fatal"
)

// Classify buckets an error from a host API call. Unknown errors,
// including plain network failures, count as transient; a wrongly
// retried call is cheaper than a silently abandoned review.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassTransient
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return ClassRateLimited
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return ClassRateLimited
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return classifyStatus(respErr.Response.StatusCode)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassFatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}

	return ClassTransient
}

// ClassifyPost classifies errors from non-idempotent calls, posting a
// review or a comment. Retrying must not duplicate output, so only
// failures known to have left no trace are retryable: a request that
// never got a response, or one the host explicitly rejected with a
// 4xx. A 5xx leaves the outcome ambiguous and is treated as fatal.
func ClassifyPost(err error) ErrorClass {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return ClassRateLimited
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		status := respErr.Response.StatusCode
		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return ClassAuth
		case status == http.StatusTooManyRequests:
			return ClassRateLimited
		case status >= http.StatusInternalServerError:
			return ClassFatal
		default:
			return ClassFatal
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassFatal
	}

	return ClassTransient
}

func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ClassAuth
	case status == http.StatusTooManyRequests:
		return ClassRateLimited
	case status >= http.StatusInternalServerError:
		return ClassTransient
	case status >= http.StatusBadRequest:
		return ClassFatal
	default:
		return ClassTransient
	}
}

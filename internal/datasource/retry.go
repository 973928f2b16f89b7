package datasource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrMalformedResponse marks a payload that cannot be decoded; retrying the
// same source will not fix it.
var ErrMalformedResponse = errors.New("malformed response")

// ErrUnsupported is returned by a source that does not serve a resource.
// The client moves on to the next source without penalising this one.
var ErrUnsupported = errors.New("resource not supported by source")

// StatusError is an HTTP-level failure reported by a source.
type StatusError struct {
	Source string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Source, e.Code, e.Body)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the retry loop gives up immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsRetryable reports whether a failed call is worth repeating against the
// same source: timeouts, connection errors, 429 and 5xx are; caller
// cancellation, 4xx and malformed payloads are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var perm *permanentError
	if errors.As(err, &perm) || errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrUnsupported) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code == http.StatusTooManyRequests || status.Code >= 500
	}
	// timeouts and connection failures
	return true
}

// isSourceFault reports whether err should count against the source's
// breaker. A 404 or a cancelled caller says nothing about source health.
func isSourceFault(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrUnsupported) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) && status.Code >= 400 && status.Code < 500 && status.Code != http.StatusTooManyRequests {
		return false
	}
	return true
}

type backoff struct {
	base   time.Duration
	factor float64
	max    time.Duration
}

// delay returns the wait before retry number attempt (1-based).
func (b backoff) delay(attempt int) time.Duration {
	d := float64(b.base)
	for i := 1; i < attempt; i++ {
		d *= b.factor
		if time.Duration(d) >= b.max {
			return b.max
		}
	}
	if time.Duration(d) > b.max {
		return b.max
	}
	return time.Duration(d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

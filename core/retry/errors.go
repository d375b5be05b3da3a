package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrPermanent marks an error as not worth retrying.
var ErrPermanent = errors.New("permanent failure")

// ExhaustedError is returned once a policy gives up on an operation.
type ExhaustedError struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Operation, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// StatusError is returned by HTTP backends for non-success responses.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func NewStatusError(resp *http.Response, body []byte) *StatusError {
	return &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: string(body)}
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("non-OK HTTP status: %s", e.Status)
	}
	return fmt.Sprintf("non-OK HTTP status: %s: %s", e.Status, e.Body)
}

func (e *StatusError) Retryable() bool {
	switch {
	case e.Code == http.StatusTooManyRequests, e.Code == http.StatusRequestTimeout:
		return true
	case e.Code >= http.StatusInternalServerError:
		return true
	}
	return false
}

// Permanent wraps err so that the default classifier will not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsRetryable is the default classifier: rate limits, 5xx, timeouts and
// unknown failures are retried, auth and bad requests are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var classified interface{ Retryable() bool }
	if errors.As(err, &classified) {
		return classified.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return true
}

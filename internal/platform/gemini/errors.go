package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrMissingAPIKey = errors.New("missing GEMINI_API_KEY")
	ErrNoCandidates  = errors.New("gemini: response has no candidates")
	ErrEmptyText     = errors.New("gemini: response has no text")
	ErrNoInlineData  = errors.New("gemini: response has no inline data")
	ErrBlocked       = errors.New("gemini: prompt blocked")
)

type HTTPError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("gemini http %d (%s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("gemini http %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

func IsRetryableHTTPStatus(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

// IsRetryableError reports transient transport failures and retryable statuses.
// Cancellation by the caller is never retryable.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var sc HTTPStatusCoder
	if errors.As(err, &sc) {
		return IsRetryableHTTPStatus(sc.HTTPStatusCode())
	}
	return false
}

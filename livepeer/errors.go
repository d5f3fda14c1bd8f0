package livepeer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sony/gobreaker"
)

// ErrNotFound is matched by APIErrors with status 404.
var ErrNotFound = errors.New("livepeer: not found")

// APIError is a non-2xx response.
type APIError struct {
	Status   int
	Endpoint string
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("livepeer %s: status %d: %s", e.Endpoint, e.Status, e.Body)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// ErrorClass represents whether a failed call is worth repeating.
type ErrorClass int

const (
	// ErrorClassRetryable covers transient failures: 5xx, 429, network errors, open breaker.
	ErrorClassRetryable ErrorClass = iota
	// ErrorClassFatal covers client errors and cancellation.
	ErrorClassFatal
	ErrorClassUnknown
)

func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassRetryable:
		return "retryable"
	case ErrorClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ClassifyError sorts a client error into retryable vs fatal. Unrecognized errors are treated
// as retryable so a later reconciler pass tries again.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusTooManyRequests, apiErr.Status >= 500:
			return ErrorClassRetryable
		case apiErr.Status >= 400:
			return ErrorClassFatal
		}
	}
	if errors.Is(err, context.Canceled) {
		return ErrorClassFatal
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrorClassRetryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassRetryable
	}

	return ErrorClassRetryable
}

func IsRetryableError(err error) bool { return ClassifyError(err) == ErrorClassRetryable }

func IsFatalError(err error) bool { return ClassifyError(err) == ErrorClassFatal }

// outcome labels a call for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, gobreaker.ErrOpenState):
		return "circuit_open"
	case IsFatalError(err):
		return "client_error"
	default:
		return "error"
	}
}

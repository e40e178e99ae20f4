package llms

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// TransientError is a provider failure that may succeed on retry: rate
// limits, server errors, network failures. The HTTP client has already
// retried by the time callers see one.
type TransientError struct {
	Provider   string
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient error (HTTP %d): %s", e.Provider, e.StatusCode, e.Message)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is a provider failure that retrying cannot fix: bad
// credentials, malformed requests, unknown models.
type PermanentError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%s: permanent error (HTTP %d): %s", e.Provider, e.StatusCode, e.Message)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// classifyHTTPError maps a provider HTTP failure to the error taxonomy.
// Network-level failures (statusCode 0) count as transient.
func classifyHTTPError(provider string, statusCode int, message string, err error) error {
	switch {
	case statusCode == 0,
		statusCode == http.StatusTooManyRequests,
		statusCode == http.StatusRequestTimeout,
		statusCode >= 500:
		return &TransientError{Provider: provider, StatusCode: statusCode, Message: message, Err: err}
	default:
		return &PermanentError{Provider: provider, StatusCode: statusCode, Message: message, Err: err}
	}
}

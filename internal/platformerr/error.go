// Package platformerr classifies failures of operations on the code hosting
// platform.
package platformerr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind is the category of a failed platform operation.
type Kind int

const (
	Unknown Kind = iota
	Transport
	AuthFailure
	NotFound
	MalformedResponse
	RateLimited
	MergeConflict
	Timeout
)

func (k Kind) String() string {
	switch k {
	case Transport:
		return "transport"
	case AuthFailure:
		return "auth_failure"
	case NotFound:
		return "not_found"
	case MalformedResponse:
		return "malformed_response"
	case RateLimited:
		return "rate_limited"
	case MergeConflict:
		return "merge_conflict"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is returned by all operations of the platform client.
type Error struct {
	Kind Kind
	// Operation is a short name of the failed operation, e.g. "create_ref".
	Operation string
	// StatusCode is the HTTP status code of the response, 0 if no
	// response was received.
	StatusCode int
	// RetryAfter is the earliest point in time the operation should be
	// retried. It is the zero value if it is unknown.
	RetryAfter time.Time
	// Err is the wrapped original error
	Err error
}

func New(kind Kind, operation string, statusCode int, err error) *Error {
	return &Error{
		Kind:       kind,
		Operation:  operation,
		StatusCode: statusCode,
		Err:        err,
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed (%s, http status %d): %s", e.Operation, e.Kind, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("%s failed (%s): %s", e.Operation, e.Kind, e.Err)
}

// Retryable returns true if repeating the operation can succeed without
// any change on the platform side.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case Transport, RateLimited:
		return true
	case Unknown:
		return e.StatusCode >= 500 && e.StatusCode < 600
	default:
		return false
	}
}

// KindOf returns the Kind of the first *Error in err's chain.
// If err does not wrap an *Error, Unknown is returned.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}

	return Unknown
}

// IsRetryable returns true if err wraps an *Error that is retryable.
func IsRetryable(err error) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Retryable()
	}

	return false
}

// RetryAfter returns the RetryAfter timestamp of the *Error wrapped by err.
func RetryAfter(err error) time.Time {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.RetryAfter
	}

	return time.Time{}
}

// KindFromStatusCode maps an HTTP response status code to a Kind.
func KindFromStatusCode(code int) Kind {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return AuthFailure
	case http.StatusNotFound:
		return NotFound
	case http.StatusConflict:
		return MergeConflict
	case http.StatusTooManyRequests:
		return RateLimited
	default:
		return Unknown
	}
}

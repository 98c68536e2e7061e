package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrSessionInvalid is returned when the server rejects the bearer token.
// The caller must re-authenticate before any retry can succeed.
var ErrSessionInvalid = errors.New("session invalid or expired")

// ErrMalformedPayload is returned when a response body cannot be decoded.
var ErrMalformedPayload = errors.New("malformed response payload")

// TransientError wraps failures that may succeed on retry: transport errors,
// rate limiting and server errors.
type TransientError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: server returned %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RejectionError is a definitive client-error response from the server.
type RejectionError struct {
	Status int
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("request rejected (%d %s)", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("request rejected (%d): %s", e.Status, e.Detail)
}

// IsNotFound reports whether err is a 404 rejection.
func IsNotFound(err error) bool {
	var rej *RejectionError
	return errors.As(err, &rej) && rej.Status == http.StatusNotFound
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether retrying err cannot help: the session was
// rejected or the server refused the request outright.
func IsPermanent(err error) bool {
	var rej *RejectionError
	return errors.Is(err, ErrSessionInvalid) || errors.As(err, &rej)
}

// classifyStatus maps a non-2xx status and its body detail to an error.
func classifyStatus(op string, status int, detail string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, ErrSessionInvalid)
	case status == http.StatusTooManyRequests || status >= 500:
		if detail == "" {
			detail = http.StatusText(status)
		}
		return &TransientError{Op: op, Status: status, Err: errors.New(detail)}
	default:
		return &RejectionError{Status: status, Detail: detail}
	}
}

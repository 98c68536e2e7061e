package output

import (
	"encoding/json"
	"io"
	"time"
)

// ErrorCode represents a machine-readable error classification.
type ErrorCode string

// Error code constants.
const (
	ErrGeneral        ErrorCode = "GENERAL_ERROR"
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrValidation     ErrorCode = "VALIDATION_ERROR"
	ErrConflict       ErrorCode = "CONFLICT"
	ErrSessionInvalid ErrorCode = "SESSION_INVALID"
	ErrRetryable      ErrorCode = "RETRYABLE"
)

// Exit code constants.
const (
	ExitSuccess        = 0
	ExitGeneral        = 1
	ExitNotFound       = 2
	ExitValidation     = 3
	ExitConflict       = 4
	ExitSessionInvalid = 5
	ExitRetryable      = 6
)

// ExitCodeForError maps an ErrorCode to its corresponding exit code.
func ExitCodeForError(code ErrorCode) int {
	switch code {
	case ErrNotFound:
		return ExitNotFound
	case ErrValidation:
		return ExitValidation
	case ErrConflict:
		return ExitConflict
	case ErrSessionInvalid:
		return ExitSessionInvalid
	case ErrRetryable:
		return ExitRetryable
	default:
		return ExitGeneral
	}
}

type successEnvelope struct {
	OK      bool   `json:"ok"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

type errorEnvelope struct {
	OK    bool      `json:"ok"`
	Error string    `json:"error"`
	Code  ErrorCode `json:"code"`
}

// eventEnvelope is one line of a long-running command's NDJSON stream.
type eventEnvelope struct {
	Event string    `json:"event"`
	At    time.Time `json:"at"`
	Data  any       `json:"data,omitempty"`
}

func newEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

func writeJSONSuccess(w io.Writer, data any, message string) {
	newEncoder(w).Encode(successEnvelope{
		OK:      true,
		Data:    data,
		Message: message,
	})
}

func writeJSONError(w io.Writer, err error, code ErrorCode) {
	newEncoder(w).Encode(errorEnvelope{
		OK:    false,
		Error: err.Error(),
		Code:  code,
	})
}

func writeJSONEvent(w io.Writer, event string, at time.Time, data any) {
	newEncoder(w).Encode(eventEnvelope{Event: event, At: at.UTC(), Data: data})
}

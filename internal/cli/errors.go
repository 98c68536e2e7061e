package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/ALT-F4-LLC/citywatch/internal/api"
	"github.com/ALT-F4-LLC/citywatch/internal/classify"
	"github.com/ALT-F4-LLC/citywatch/internal/db"
	"github.com/ALT-F4-LLC/citywatch/internal/model"
	"github.com/ALT-F4-LLC/citywatch/internal/output"
)

// errOffline is returned by commands that need the server under --offline.
var errOffline = errors.New("this command needs the server; drop --offline")

// codeFor classifies an error from the core packages.
func codeFor(err error) output.ErrorCode {
	var rej *api.RejectionError
	var retry *classify.RetryableError
	switch {
	case err == nil:
		return output.ErrGeneral
	case errors.Is(err, api.ErrSessionInvalid):
		return output.ErrSessionInvalid
	case errors.As(err, &retry), api.IsTransient(err), errors.Is(err, context.DeadlineExceeded):
		return output.ErrRetryable
	case api.IsNotFound(err), errors.Is(err, db.ErrNotFound), errors.Is(err, classify.ErrNotPending):
		return output.ErrNotFound
	case errors.As(err, &rej):
		return output.ErrConflict
	case errors.Is(err, model.ErrInvalidReport),
		errors.Is(err, model.ErrInvalidCoordinate),
		errors.Is(err, api.ErrLocalMedia),
		errors.Is(err, errOffline):
		return output.ErrValidation
	default:
		return output.ErrGeneral
	}
}

// fail wraps err with what the command was doing and picks its exit code.
func fail(err error, doing string) *CmdError {
	return cmdErr(fmt.Errorf("%s: %w", doing, err), codeFor(err))
}

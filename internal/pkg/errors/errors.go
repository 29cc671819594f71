package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is a sentinel for ownership violations.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation is a sentinel for payloads failing required-field checks.
	ErrValidation = errors.New("validation failed")
)

// AuditWriteError reports a failed activity-log append. It is returned as a
// warning alongside a successful primary mutation, never instead of it.
type AuditWriteError struct {
	Action string
	Err    error
}

func (e *AuditWriteError) Error() string {
	return fmt.Sprintf("audit write failed for %q: %v", e.Action, e.Err)
}

func (e *AuditWriteError) Unwrap() error { return e.Err }

// Package automation contains the engine core: trigger matching, the
// enrollment processor and the workflow service.
package automation

import (
	"errors"
	"fmt"
)

// ErrNotEligible is returned by enrollment attempts the matcher rejects.
// Callers treat it as a skip, not a failure.
var ErrNotEligible = errors.New("contact is not eligible for enrollment")

// CollaboratorError wraps a failure from an external collaborator (email
// sender, webhook caller, contact mutator). Retryable errors push the
// enrollment onto the backoff schedule; the rest terminalize it.
type CollaboratorError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("collaborator error in %s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// NewCollaboratorError wraps a retryable collaborator failure.
func NewCollaboratorError(op string, err error) *CollaboratorError {
	return &CollaboratorError{Op: op, Err: err, Retryable: true}
}

// IsRetryable reports whether the error should go through the backoff
// schedule. Unclassified errors are retried; only an explicit
// non-retryable CollaboratorError short-circuits to failed.
func IsRetryable(err error) bool {
	var collabErr *CollaboratorError
	if errors.As(err, &collabErr) {
		return collabErr.Retryable
	}

	return true
}

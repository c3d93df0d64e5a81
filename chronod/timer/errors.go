package timer

import (
	"errors"
	"fmt"
)

// NotFoundError covers both genuinely absent resources and resources not
// owned by the calling user. The two are deliberately indistinguishable so
// the API never confirms another user's data exists.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nfe NotFoundError
	return errors.As(err, &nfe)
}

// ConflictError reports a violated uniqueness invariant: a second running
// timer, a duplicate day/task entry slot, a duplicate shortcut.
type ConflictError struct {
	Message string
}

func (e ConflictError) Error() string {
	return e.Message
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}

// InvalidOperationError reports a well-formed request the current state
// forbids, like editing the hours of a timer-derived entry.
type InvalidOperationError struct {
	Message string
}

func (e InvalidOperationError) Error() string {
	return e.Message
}

// IsInvalidOperation reports whether err is an InvalidOperationError.
func IsInvalidOperation(err error) bool {
	var ioe InvalidOperationError
	return errors.As(err, &ioe)
}

package session

import (
	"errors"
	"fmt"
)

// ErrUnknownAction is returned by Dispatch for actions with no handler.
var ErrUnknownAction = errors.New("unknown action")

// ValidationError reports a command rejected before any request was issued.
type ValidationError struct {
	Action Action
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Action == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Action, e.Reason)
}

func invalid(action Action, reason string) error {
	return &ValidationError{Action: action, Reason: reason}
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

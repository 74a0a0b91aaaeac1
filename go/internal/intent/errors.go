package intent

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuestion = errors.New("invalid question")
	ErrInvalidAnswer   = errors.New("answer must be 1, 2 or 3")
)

// ResolutionError means a shared object the action needs does not exist.
// It indicates misconfiguration and is never retried.
type ResolutionError struct {
	Object string
	Tier   Tier
	Err    error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("could not resolve %s", e.Object)
	if e.Tier != 0 {
		msg += fmt.Sprintf(" for tier %d", e.Tier)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

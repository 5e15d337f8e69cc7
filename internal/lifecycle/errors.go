package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition means the event has no transition in the current
	// state. The event is discarded and logged; the machine is unchanged.
	ErrInvalidTransition = errors.New("no transition for event in current state")

	// ErrNothingToDo means a guard evaluated false or the referenced
	// sub-record is absent. The caller gets "nothing to do", not a failure.
	ErrNothingToDo = errors.New("nothing to do")
)

// InvariantError is fatal for the transition: the machine rejects the event
// rather than guess at a partial update, and the actor must surface the error
// to its supervisor.
type InvariantError struct {
	Op     string
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: invariant violation: %s", e.Op, e.Reason)
}

// Invariant builds an InvariantError.
func Invariant(op, format string, args ...any) error {
	return &InvariantError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// IsInvariant reports whether err is an invariant violation.
func IsInvariant(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

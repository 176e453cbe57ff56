package workflow

import (
	"errors"
	"fmt"

	domainwf "github.com/garyjia/dealflow/internal/domain/workflow"
)

var (
	// ErrInvalidTransition is wrapped by every rejected transition
	ErrInvalidTransition = domainwf.ErrInvalidTransition

	// ErrEntityNotFound is returned when the target entity does not exist
	ErrEntityNotFound = errors.New("entity not found")

	// ErrUnauthorized is returned when the actor may not touch the entity's tenant
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConcurrentModification is returned when every compare-and-set attempt lost
	ErrConcurrentModification = errors.New("entity modified concurrently")
)

// TransitionError describes a rejected transition. It matches ErrInvalidTransition
// and, for an unknown target status, the underlying validation error.
type TransitionError struct {
	Kind     domainwf.Kind
	EntityID string
	From     string
	To       string
	Cause    error
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("cannot move %s %s from %s to %s", e.Kind, e.EntityID, e.From, e.To)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *TransitionError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrInvalidTransition, e.Cause}
	}
	return []error{ErrInvalidTransition}
}

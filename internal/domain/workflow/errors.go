package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a status is not part of its kind's enumeration
	ErrInvalidState = errors.New("invalid state")

	// ErrUnknownKind is returned for an entity kind without a transition table
	ErrUnknownKind = errors.New("unknown entity kind")
)

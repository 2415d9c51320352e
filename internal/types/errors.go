package types

import "errors"

// Error taxonomy shared by the handlers and the lifecycle services. Callers
// classify with errors.Is and wrap with fmt.Errorf("...: %w", Err...).
var (
	// ErrNotFound: a referenced entity id is absent from the record store.
	ErrNotFound = errors.New("entity not found")

	// ErrPrecondition: a required dependency is not in the required state,
	// e.g. a model's checkpoint is not Active.
	ErrPrecondition = errors.New("precondition not met")

	// ErrUnsupportedAction: the requested state transition is not defined.
	ErrUnsupportedAction = errors.New("unsupported action")

	// ErrValidation: the request is malformed or incomplete.
	ErrValidation = errors.New("invalid request")

	// ErrConflict: a conditional status update lost the race; the entity is
	// no longer in the state the caller observed.
	ErrConflict = errors.New("status conflict")

	// ErrTransientIO: an external call failed and may succeed on retry.
	ErrTransientIO = errors.New("transient io failure")

	// ErrRemoteExecution: the managed execution service itself reported failure.
	ErrRemoteExecution = errors.New("remote execution failed")
)

package models

import (
	"errors"
)

// Error taxonomy. NotFound and Validation errors are rejected synchronously
// at submission time. RuntimeUnavailable is the only class that aborts an
// in-flight operation; per-target failures fold into the operation counters.
var (
	// ErrNotFound indicates an unknown container, group or operation identifier
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates a malformed request (empty target set, bad group)
	ErrValidation = errors.New("validation failed")

	// ErrRuntimeUnavailable indicates the container runtime itself cannot be reached
	ErrRuntimeUnavailable = errors.New("container runtime unavailable")

	// ErrScriptTimeout indicates a script attempt exceeded its per-attempt timeout
	ErrScriptTimeout = errors.New("script execution timed out")

	// ErrOperationTerminal indicates a mutation was attempted on a settled operation
	ErrOperationTerminal = errors.New("operation already in a terminal state")
)

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err is, or wraps, ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsRuntimeUnavailable reports whether err is, or wraps, ErrRuntimeUnavailable.
func IsRuntimeUnavailable(err error) bool {
	return errors.Is(err, ErrRuntimeUnavailable)
}

// IsScriptTimeout reports whether err is, or wraps, ErrScriptTimeout.
func IsScriptTimeout(err error) bool {
	return errors.Is(err, ErrScriptTimeout)
}

// IsOperationTerminal reports whether err is, or wraps, ErrOperationTerminal.
func IsOperationTerminal(err error) bool {
	return errors.Is(err, ErrOperationTerminal)
}

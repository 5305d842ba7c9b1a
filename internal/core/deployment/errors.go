package deployment

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrCyclicDependency = errors.New("cyclic dependency")
	ErrMissingVariable  = errors.New("missing required variable")
	ErrInvalidMount     = errors.New("invalid volume mount")
	ErrInvalidPort      = errors.New("invalid port mapping")
)

// CycleError names the service at which a dependency cycle was entered.
type CycleError struct {
	Service string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic dependency detected at service %q", e.Service)
}

func (e *CycleError) Unwrap() error {
	return ErrCyclicDependency
}

// MissingVariableError is raised by ${NAME:?message} when NAME is unset.
// It is terminal: callers propagate it instead of handling it per field.
type MissingVariableError struct {
	Name    string
	Message string
}

func (e *MissingVariableError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("required variable %s is not set", e.Name)
	}
	return fmt.Sprintf("required variable %s: %s", e.Name, e.Message)
}

func (e *MissingVariableError) Unwrap() error {
	return ErrMissingVariable
}

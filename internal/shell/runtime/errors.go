package runtime

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Invocation errors
	ErrInvocationFailed = errors.New("runtime invocation failed")
	ErrContainerExists  = errors.New("container already exists")
	ErrNotFound         = errors.New("not found")

	// Readiness errors
	ErrDependencyTimeout = errors.New("dependency condition timed out")
	ErrDependencyFailed  = errors.New("dependency failed")

	// Volume errors
	ErrVolumeMaterialization = errors.New("volume materialization failed")
)

// InvocationError reports a non-zero exit from the runtime binary.
type InvocationError struct {
	Op       string // Operation that failed (run, stop, network create, ...)
	Entity   string // Container, network or image name if applicable
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *InvocationError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = fmt.Sprintf("exit status %d", e.ExitCode)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Entity, msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Unwrap always includes ErrInvocationFailed alongside the specific cause.
func (e *InvocationError) Unwrap() []error {
	if e.Err != nil && e.Err != ErrInvocationFailed {
		return []error{e.Err, ErrInvocationFailed}
	}
	return []error{ErrInvocationFailed}
}

// IsExists reports whether err means the entity already exists.
func IsExists(err error) bool {
	return errors.Is(err, ErrContainerExists)
}

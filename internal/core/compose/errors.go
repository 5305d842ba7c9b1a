// Package compose contains pure functions for decoding and merging compose documents.
// This is part of the Functional Core - all functions are pure with no I/O.
package compose

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Error Types
// =============================================================================

// ErrSchemaViolation is the root of every decode failure.
var ErrSchemaViolation = errors.New("schema violation")

var (
	// Input validation errors
	ErrEmptyInput  = fmt.Errorf("%w: compose document is empty", ErrSchemaViolation)
	ErrInvalidYAML = fmt.Errorf("%w: invalid YAML syntax", ErrSchemaViolation)

	// Structure errors
	ErrNotMapping = fmt.Errorf("%w: compose document must be a mapping", ErrSchemaViolation)
	ErrNoServices = fmt.Errorf("%w: services key is required", ErrSchemaViolation)

	// Field errors
	ErrServiceNoImage   = fmt.Errorf("%w: service must have image or build", ErrSchemaViolation)
	ErrInvalidShape     = fmt.Errorf("%w: unrecognized field shape", ErrSchemaViolation)
	ErrUnknownCondition = fmt.Errorf("%w: unknown dependency condition", ErrSchemaViolation)
)

// ParseError wraps errors with context about where decoding failed.
type ParseError struct {
	Field   string // e.g., "services.web.depends_on.db.condition"
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(field, message string, err error) *ParseError {
	return &ParseError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// fieldError attaches field to err, prefixing the path of an existing ParseError.
func fieldError(field string, err error) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		return NewParseError(joinField(field, pe.Field), pe.Message, pe.Err)
	}
	var te *yaml.TypeError
	if errors.As(err, &te) {
		return NewParseError(field, strings.Join(te.Errors, "; "), ErrInvalidShape)
	}
	return NewParseError(field, err.Error(), ErrInvalidShape)
}

func joinField(parent, child string) string {
	switch {
	case parent == "":
		return child
	case child == "":
		return parent
	default:
		return parent + "." + child
	}
}

package main

import (
	"errors"

	"github.com/artpar/container-compose/internal/core/compose"
	"github.com/artpar/container-compose/internal/core/deployment"
	"github.com/artpar/container-compose/internal/shell/project"
	"github.com/artpar/container-compose/internal/shell/runtime"
)

// Exit codes
const (
	ExitSuccess          = 0
	ExitGeneralError     = 1
	ExitConfigError      = 2
	ExitSchemaViolation  = 3
	ExitCyclicDependency = 4
	ExitMissingVariable  = 5
	ExitServiceFailure   = 6
)

// errConfig marks configuration loading failures.
var errConfig = errors.New("configuration error")

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, compose.ErrSchemaViolation):
		return ExitSchemaViolation
	case errors.Is(err, deployment.ErrCyclicDependency):
		return ExitCyclicDependency
	case errors.Is(err, deployment.ErrMissingVariable):
		return ExitMissingVariable
	case errors.Is(err, runtime.ErrServicesFailed):
		return ExitServiceFailure
	case errors.Is(err, errConfig),
		errors.Is(err, project.ErrNoComposeFile),
		errors.Is(err, project.ErrIncludeCycle),
		errors.Is(err, runtime.ErrUnknownService):
		return ExitConfigError
	default:
		return ExitGeneralError
	}
}

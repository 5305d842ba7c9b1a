package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	"github.com/alessio/shellescape"
)

// =============================================================================
// Exec Invoker
// =============================================================================

// ExecInvoker runs commands as child processes.
type ExecInvoker struct {
	// Dir is the working directory of every child. Empty means the caller's.
	Dir    string
	logger *slog.Logger
}

// NewExecInvoker creates an invoker that logs every command line at debug level.
func NewExecInvoker(dir string, logger *slog.Logger) *ExecInvoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecInvoker{Dir: dir, logger: logger}
}

// Run executes name with args and waits for it to exit.
func (e *ExecInvoker) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = e.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug("exec", "cmd", commandLine(name, args))

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case ctx.Err() != nil:
		return res, ctx.Err()
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		return res, fmt.Errorf("exec %s: %w", name, err)
	}
}

// Start launches name with args without waiting. Output streams to stdout
// and stderr; nil writers discard.
func (e *ExecInvoker) Start(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) (Handle, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = e.Dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	e.logger.Debug("exec (detached)", "cmd", commandLine(name, args))

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("exec %s: %w", name, err)
	}
	return cmd, nil
}

func commandLine(name string, args []string) string {
	return shellescape.QuoteCommand(append([]string{name}, args...))
}

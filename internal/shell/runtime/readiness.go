package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/artpar/container-compose/internal/core/compose"
)

// =============================================================================
// Dependency Readiness
// =============================================================================

// inspector is the part of CLI readiness polling needs.
type inspector interface {
	Inspect(ctx context.Context, name string) (ContainerStatus, error)
}

// errNotReady marks a poll that should be retried.
var errNotReady = errors.New("not ready")

// WaitForCondition blocks until the container satisfies cond.
//
// started is satisfied as soon as the container was launched. healthy waits
// for a healthy (or health-less running) container. completed_successfully
// waits for the container to exit; a non-zero exit fails without retrying.
func WaitForCondition(ctx context.Context, insp inspector, container string, cond compose.Condition, cfg ReadinessConfig, logger *slog.Logger) error {
	if cond == "" || cond == compose.ConditionStarted {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultReadiness.Interval
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(cfg.Interval)
	if cfg.Retries > 0 {
		b = backoff.WithMaxRetries(b, uint64(cfg.Retries))
	}
	b = backoff.WithContext(b, ctx)

	var last ContainerStatus
	poll := func() error {
		status, err := insp.Inspect(ctx, container)
		if err != nil {
			return err
		}
		last = status
		return checkCondition(status, cond)
	}
	notify := func(err error, wait time.Duration) {
		logger.Debug("waiting for dependency",
			"container", container,
			"condition", cond,
			"state", last.State,
			"health", last.Health,
			"retry_in", wait,
			"reason", err,
		)
	}

	err := backoff.RetryNotify(poll, b, notify)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDependencyFailed):
		return err
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %s did not become %s (state %q): %v",
			ErrDependencyTimeout, container, cond, last.State, err)
	}
}

// checkCondition returns nil when satisfied, errNotReady to keep polling,
// or a permanent error when the condition can never be met.
func checkCondition(status ContainerStatus, cond compose.Condition) error {
	switch cond {
	case compose.ConditionHealthy:
		if status.Healthy() {
			return nil
		}
		if status.Exited() {
			return backoff.Permanent(fmt.Errorf("%w: %s exited before becoming healthy",
				ErrDependencyFailed, status.Name))
		}
		return errNotReady
	case compose.ConditionCompletedSuccessfully:
		if !status.Exited() {
			return errNotReady
		}
		if status.ExitUnknown {
			return backoff.Permanent(fmt.Errorf("%w: %s exited without reporting an exit code",
				ErrDependencyFailed, status.Name))
		}
		if status.ExitCode != 0 {
			return backoff.Permanent(fmt.Errorf("%w: %s exited with code %d",
				ErrDependencyFailed, status.Name, status.ExitCode))
		}
		return nil
	default:
		return nil
	}
}

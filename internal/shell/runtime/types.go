// Package runtime drives an external container runtime CLI to bring a
// compose project up and down.
package runtime

import (
	"context"
	"io"
	"time"

	dockercontainer "github.com/docker/docker/api/types/container"
)

// =============================================================================
// Invoker Interface
// =============================================================================

// Result is the captured outcome of a blocking invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Handle is a detached invocation.
type Handle interface {
	// Wait blocks until the process exits.
	Wait() error
}

// Invoker executes external commands. Run returns an error only when the
// process could not be run at all; a non-zero exit is reported in Result.
type Invoker interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
	Start(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) (Handle, error)
}

// =============================================================================
// Container Status
// =============================================================================

// ContainerStatus is the subset of inspect output readiness needs.
type ContainerStatus struct {
	Name     string
	State    string // running, exited, stopped, ...
	Health   string // empty when the runtime reports no health check
	ExitCode int
	// ExitUnknown is set when the runtime reported no exit code for a
	// stopped container.
	ExitUnknown bool
}

// Running reports whether the container is running.
func (s ContainerStatus) Running() bool {
	return s.State == dockercontainer.StateRunning
}

// Exited reports whether the container has stopped for good.
func (s ContainerStatus) Exited() bool {
	switch s.State {
	case dockercontainer.StateExited, dockercontainer.StateDead, "stopped":
		return true
	default:
		return false
	}
}

// Healthy reports whether a health-checked container is healthy, or a
// container without health information is running.
func (s ContainerStatus) Healthy() bool {
	if s.Health == "" || s.Health == dockercontainer.NoHealthcheck {
		return s.Running()
	}
	return s.Health == dockercontainer.Healthy
}

// =============================================================================
// Options
// =============================================================================

// ReadinessConfig bounds dependency condition polling.
type ReadinessConfig struct {
	Interval time.Duration
	Retries  int
	Timeout  time.Duration
}

// DefaultReadiness polls every 2s, 30 times, for at most 2 minutes.
var DefaultReadiness = ReadinessConfig{
	Interval: 2 * time.Second,
	Retries:  30,
	Timeout:  2 * time.Minute,
}

// Options configures an Orchestrator.
type Options struct {
	// Parallelism caps concurrent service starts. 0 means unlimited.
	Parallelism int
	Readiness   ReadinessConfig
	// VolumesRoot overrides {home}/.containers/Volumes.
	VolumesRoot string
	// Logs receives followed container output when not detached.
	Logs io.Writer
}

// UpOptions are the per-call options of Up.
type UpOptions struct {
	Services []string
	Detach   bool
	Build    bool
	NoCache  bool
}

// DownOptions are the per-call options of Down.
type DownOptions struct {
	Services []string
	Remove   bool
}

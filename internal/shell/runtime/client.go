package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/artpar/container-compose/internal/core/deployment"
)

// =============================================================================
// Runtime CLI Client
// =============================================================================

// DefaultBinary is the runtime executable used when none is configured.
const DefaultBinary = "container"

// CLI turns typed operations into invocations of the runtime binary.
type CLI struct {
	inv    Invoker
	binary string
	logger *slog.Logger
}

// NewCLI creates a client for binary (DefaultBinary when empty).
func NewCLI(inv Invoker, binary string, logger *slog.Logger) *CLI {
	if binary == "" {
		binary = DefaultBinary
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CLI{inv: inv, binary: binary, logger: logger}
}

// Binary returns the runtime executable name.
func (c *CLI) Binary() string {
	return c.binary
}

// invoke runs args and turns a non-zero exit into an *InvocationError.
func (c *CLI) invoke(ctx context.Context, op, entity string, args []string) (Result, error) {
	res, err := c.inv.Run(ctx, c.binary, args...)
	if err != nil {
		return res, fmt.Errorf("%s %s: %w", op, entity, err)
	}
	if res.ExitCode != 0 {
		return res, &InvocationError{
			Op:       op,
			Entity:   entity,
			Args:     args,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
		}
	}
	return res, nil
}

// =============================================================================
// Network Operations
// =============================================================================

// CreateNetwork runs "network create". An existing network is not an error.
func (c *CLI) CreateNetwork(ctx context.Context, args []string) error {
	name := ""
	if len(args) > 0 {
		name = args[len(args)-1]
	}
	res, err := c.invoke(ctx, "network create", name, args)
	if err != nil && alreadyExists(res) {
		c.logger.Debug("network already exists", "network", name)
		return nil
	}
	return err
}

// =============================================================================
// Image Operations
// =============================================================================

// ImageExists reports whether image is present locally.
func (c *CLI) ImageExists(ctx context.Context, image string) (bool, error) {
	res, err := c.inv.Run(ctx, c.binary, "image", "inspect", image)
	if err != nil {
		return false, fmt.Errorf("image inspect %s: %w", image, err)
	}
	return res.ExitCode == 0, nil
}

// Build runs an image build.
func (c *CLI) Build(ctx context.Context, plan deployment.BuildPlan) error {
	_, err := c.invoke(ctx, "build", plan.Tag, plan.Args())
	return err
}

// =============================================================================
// Container Operations
// =============================================================================

// Run starts a detached container. A name collision wraps ErrContainerExists.
func (c *CLI) Run(ctx context.Context, plan deployment.ContainerPlan) error {
	res, err := c.invoke(ctx, "run", plan.Name, plan.RunArgs())
	var ie *InvocationError
	if errors.As(err, &ie) && alreadyExists(res) {
		ie.Err = ErrContainerExists
	}
	return err
}

// Stop stops a container.
func (c *CLI) Stop(ctx context.Context, name string) error {
	_, err := c.invoke(ctx, "stop", name, []string{"stop", name})
	return err
}

// Remove deletes a stopped container.
func (c *CLI) Remove(ctx context.Context, name string) error {
	_, err := c.invoke(ctx, "rm", name, []string{"rm", name})
	return err
}

// Inspect returns the parsed status of a container.
func (c *CLI) Inspect(ctx context.Context, name string) (ContainerStatus, error) {
	res, err := c.invoke(ctx, "inspect", name, []string{"inspect", name})
	if err != nil {
		return ContainerStatus{}, err
	}
	return ParseInspect(name, []byte(res.Stdout))
}

// FollowLogs streams a container's logs until it exits or ctx ends.
func (c *CLI) FollowLogs(ctx context.Context, name string, out io.Writer) (Handle, error) {
	return c.inv.Start(ctx, out, out, c.binary, "logs", "--follow", name)
}

func alreadyExists(res Result) bool {
	return strings.Contains(strings.ToLower(res.Stderr), "already exists")
}

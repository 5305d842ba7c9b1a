package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/artpar/container-compose/internal/core/compose"
	"github.com/artpar/container-compose/internal/core/deployment"
	"github.com/artpar/container-compose/internal/shell/project"
	"github.com/artpar/container-compose/internal/shell/runtime"
)

// app carries state shared by every subcommand.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string
	logFormat  string

	cfg    *Config
	logger *slog.Logger
}

// projectFlags are the flags that locate a compose project.
type projectFlags struct {
	file string
	cwd  string
}

func (f *projectFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Compose file (default: compose.yml, compose.yaml, docker-compose.yml, docker-compose.yaml)")
	cmd.Flags().StringVar(&f.cwd, "cwd", "", "Working directory (default: current directory)")
}

func (f *projectFlags) load() (*project.Project, error) {
	return project.Load(project.LoadOptions{WorkingDir: f.cwd, File: f.file})
}

// =============================================================================
// Root Command
// =============================================================================

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "container-compose",
		Short:         "Run multi-service compose projects on a container runtime CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Log format (text, json)")

	root.AddCommand(newUpCommand(a))
	root.AddCommand(newDownCommand(a))
	root.AddCommand(newConfigCommand(a))
	root.AddCommand(newVersionCommand(a))

	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = a.logFormat
	}
	a.cfg = cfg
	a.logger = SetupLogger(cfg, a.stderr)
	return nil
}

func (a *app) orchestrator(workingDir string) *runtime.Orchestrator {
	inv := runtime.NewExecInvoker(workingDir, a.logger)
	cli := runtime.NewCLI(inv, a.cfg.Runtime.Binary, a.logger)
	return runtime.NewOrchestrator(cli, a.logger, runtime.Options{
		Parallelism: a.cfg.Runtime.Parallelism,
		Readiness: runtime.ReadinessConfig{
			Interval: a.cfg.Readiness.Interval,
			Retries:  a.cfg.Readiness.Retries,
			Timeout:  a.cfg.Readiness.Timeout,
		},
		VolumesRoot: a.cfg.Volumes.Root,
		Logs:        a.stdout,
	})
}

// =============================================================================
// up
// =============================================================================

func newUpCommand(a *app) *cobra.Command {
	var (
		pf   projectFlags
		opts runtime.UpOptions
	)

	cmd := &cobra.Command{
		Use:   "up [service...]",
		Short: "Create networks and volumes, then start services in dependency order",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pf.load()
			if err != nil {
				return err
			}
			opts.Services = args

			report, err := a.orchestrator(p.WorkingDir).Up(cmd.Context(), p, opts)
			if err != nil {
				return err
			}
			return report.Err()
		},
	}

	pf.register(cmd)
	cmd.Flags().BoolVarP(&opts.Detach, "detach", "d", false, "Start containers and return without following logs")
	cmd.Flags().BoolVarP(&opts.Build, "build", "b", false, "Build images before starting, even if present")
	cmd.Flags().BoolVar(&opts.NoCache, "no-cache", false, "Build without cache")

	return cmd
}

// =============================================================================
// down
// =============================================================================

func newDownCommand(a *app) *cobra.Command {
	var (
		pf   projectFlags
		opts runtime.DownOptions
	)

	cmd := &cobra.Command{
		Use:   "down [service...]",
		Short: "Stop services in reverse dependency order",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pf.load()
			if err != nil {
				return err
			}
			opts.Services = args

			report, err := a.orchestrator(p.WorkingDir).Down(cmd.Context(), p, opts)
			if err != nil {
				return err
			}
			return report.Err()
		},
	}

	pf.register(cmd)
	cmd.Flags().BoolVar(&opts.Remove, "remove", false, "Remove containers after stopping them")

	return cmd
}

// =============================================================================
// config
// =============================================================================

func newConfigCommand(a *app) *cobra.Command {
	var (
		pf       projectFlags
		services bool
		strict   bool
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate and print the merged compose document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := pf.load()
			if err != nil {
				return err
			}

			if strict {
				content, err := p.Content()
				if err != nil {
					return err
				}
				if err := compose.ValidateStrict(cmd.Context(), content, p.WorkingDir); err != nil {
					return err
				}
			}

			res, err := deployment.TopologicalSort(deployment.OrderedServices(p.Document))
			if err != nil {
				return err
			}

			if services {
				for _, name := range res.Names() {
					fmt.Fprintln(a.stdout, name)
				}
				return nil
			}

			out, err := p.Document.Encode()
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(out)
			return err
		},
	}

	pf.register(cmd)
	cmd.Flags().BoolVar(&services, "services", false, "Print service names in start order")
	cmd.Flags().BoolVar(&strict, "strict", false, "Also validate against the full compose specification")

	return cmd
}

// =============================================================================
// version
// =============================================================================

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			fmt.Fprintf(a.stdout, "container-compose %s (built %s)\n", Version, BuildTime)
			return nil
		},
	}
}

package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/artpar/container-compose/internal/core/compose"
	"github.com/artpar/container-compose/internal/core/deployment"
	"github.com/artpar/container-compose/internal/shell/project"
)

// =============================================================================
// Orchestrator - Brings a Project Up and Down
// =============================================================================

// ErrServicesFailed is returned by Report.Err when any service failed.
var ErrServicesFailed = errors.New("one or more services failed")

// ErrUnknownService is returned when a requested service is not declared.
var ErrUnknownService = errors.New("no such service")

// Orchestrator sequences runtime invocations for a project.
type Orchestrator struct {
	cli    *CLI
	logger *slog.Logger
	opts   Options
}

// NewOrchestrator creates a new orchestrator.
func NewOrchestrator(cli *CLI, logger *slog.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Readiness == (ReadinessConfig{}) {
		opts.Readiness = DefaultReadiness
	}
	if opts.Logs == nil {
		opts.Logs = os.Stdout
	}
	return &Orchestrator{cli: cli, logger: logger, opts: opts}
}

// =============================================================================
// Report
// =============================================================================

// Report collects per-service outcomes of one Up or Down call.
// It is safe for concurrent use.
type Report struct {
	RunID   string
	Started []string
	Stopped []string
	Skipped []string
	Failed  map[string]error

	mu         sync.Mutex
	containers map[string]string
}

func newReport() *Report {
	return &Report{
		RunID:      uuid.NewString(),
		Failed:     make(map[string]error),
		containers: make(map[string]string),
	}
}

func (r *Report) started(service, container string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Started = append(r.Started, service)
	r.containers[service] = container
}

func (r *Report) stopped(service string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Stopped = append(r.Stopped, service)
}

func (r *Report) skipped(service string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Skipped = append(r.Skipped, service)
}

func (r *Report) fail(service string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed[service] = err
}

func (r *Report) failure(service string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Failed[service]
}

// Container returns the container started for service, if any.
func (r *Report) Container(service string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.containers[service]
	return name, ok
}

// Err aggregates every failure, sorted by service name. It returns nil when
// nothing failed.
func (r *Report) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Failed) == 0 {
		return nil
	}
	names := lo.Keys(r.Failed)
	sort.Strings(names)
	errs := lo.Map(names, func(name string, _ int) error {
		return fmt.Errorf("%s: %w", name, r.Failed[name])
	})
	return fmt.Errorf("%w (%s): %w", ErrServicesFailed, strings.Join(names, ", "), errors.Join(errs...))
}

// =============================================================================
// Up
// =============================================================================

// preparedService is a service with variables resolved ahead of any invocation.
type preparedService struct {
	name      string
	service   *compose.Service
	env       map[string]string
	container string
}

// Up brings the project's services up in dependency order.
//
// Structural errors (unknown services, cycles, missing required variables)
// are returned before anything is invoked. Per-service failures are recorded
// in the report and do not stop independent branches; the caller checks
// Report.Err.
func (o *Orchestrator) Up(ctx context.Context, p *project.Project, opts UpOptions) (*Report, error) {
	report := newReport()
	logger := o.logger.With("project", p.Name, "run_id", report.RunID)

	res, err := deployment.TopologicalSort(deployment.OrderedServices(p.Document))
	if err != nil {
		return report, err
	}
	if unknown := lo.Without(opts.Services, res.Names()...); len(unknown) > 0 {
		return report, fmt.Errorf("%w: %s", ErrUnknownService, strings.Join(unknown, ", "))
	}
	selected := res.SelectWithDependencies(opts.Services)

	prepared, err := o.prepare(p, selected, logger)
	if err != nil {
		return report, err
	}

	o.noteIgnored(p.Document, logger)
	o.createNetworks(ctx, p, logger)
	o.materializeVolumes(p, logger)

	logger.Info("starting services", "services", len(selected))

	done := make(map[string]chan struct{}, len(selected))
	for _, ns := range selected {
		done[ns.Name] = make(chan struct{})
	}

	var g errgroup.Group
	if o.opts.Parallelism > 0 {
		g.SetLimit(o.opts.Parallelism)
	}
	for _, ns := range selected {
		ps := prepared[ns.Name]
		name := ns.Name
		g.Go(func() error {
			defer close(done[name])
			if ps == nil {
				logger.Warn("service has no definition, skipping", "service", name)
				report.skipped(name)
				return nil
			}
			if err := o.startService(ctx, p, ps, prepared, done, report, opts, logger); err != nil {
				logger.Error("service failed", "service", name, "error", err)
				report.fail(name, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if !opts.Detach && len(report.Started) > 0 {
		o.followLogs(ctx, report, logger)
	}

	logger.Info("up finished",
		"started", len(report.Started),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
	)
	return report, nil
}

// prepare resolves variables for every selected service. Null services map
// to nil.
func (o *Orchestrator) prepare(p *project.Project, selected []deployment.NamedService, logger *slog.Logger) (map[string]*preparedService, error) {
	prepared := make(map[string]*preparedService, len(selected))
	for _, ns := range selected {
		if ns.Service == nil {
			prepared[ns.Name] = nil
			continue
		}
		svc, err := deployment.InterpolateService(ns.Service, p.Env)
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", ns.Name, err)
		}
		envFiles := p.EnvFiles(svc.EnvFile, logger.With("service", ns.Name))
		env, err := deployment.ResolveEnvironment(p.DotEnv, envFiles, svc.Environment, p.Env)
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", ns.Name, err)
		}
		prepared[ns.Name] = &preparedService{
			name:      ns.Name,
			service:   svc,
			env:       env,
			container: deployment.ContainerName(p.Name, ns.Name, svc.ContainerName),
		}
	}
	return prepared, nil
}

// noteIgnored logs the parsed sections that have no effect on the runtime.
func (o *Orchestrator) noteIgnored(doc *compose.Document, logger *slog.Logger) {
	if doc.Version != "" {
		logger.Info("version is informational only", "version", doc.Version)
	}
	if len(doc.Configs) > 0 {
		logger.Info("configs are parsed but not applied", "configs", lo.Keys(doc.Configs))
	}
	if len(doc.Secrets) > 0 {
		logger.Info("secrets are parsed but not applied", "secrets", lo.Keys(doc.Secrets))
	}
	doc.Services.Each(func(name string, svc *compose.Service) {
		if svc != nil && svc.Deploy != nil {
			logger.Info("deploy settings are parsed but not applied", "service", name)
		}
	})
}

// createNetworks creates every non-external network in document order.
// Failures are logged; services attached to the network fail on run.
func (o *Orchestrator) createNetworks(ctx context.Context, p *project.Project, logger *slog.Logger) {
	p.Document.Networks.Each(func(key string, network *compose.Network) {
		name := deployment.NetworkName(key, network)
		if network != nil && network.External.External {
			logger.Warn("network is external, assuming it exists", "network", name)
			return
		}
		if err := o.cli.CreateNetwork(ctx, deployment.NetworkCreateArgs(name, network)); err != nil {
			logger.Error("failed to create network", "network", name, "error", err)
			return
		}
		logger.Debug("network ready", "network", name)
	})
}

// materializeVolumes creates the host directory of every non-external
// top-level volume. Failures are warnings.
func (o *Orchestrator) materializeVolumes(p *project.Project, logger *slog.Logger) {
	mc := o.mountContext(p)
	p.Document.Volumes.Each(func(key string, volume *compose.Volume) {
		if volume != nil && volume.External.External {
			logger.Debug("volume is external, not materializing", "volume", key)
			return
		}
		path := deployment.NamedVolumePath(key, volume, mc)
		if err := MaterializeDir(path); err != nil {
			logger.Warn("failed to materialize volume", "volume", key, "path", path, "error", err)
		}
	})
}

func (o *Orchestrator) mountContext(p *project.Project) deployment.MountContext {
	return deployment.MountContext{
		WorkingDir:  p.WorkingDir,
		Home:        p.Home,
		VolumesRoot: o.opts.VolumesRoot,
		Project:     p.Name,
		Volumes:     p.Document.Volumes,
	}
}

// =============================================================================
// Service Start
// =============================================================================

func (o *Orchestrator) startService(
	ctx context.Context,
	p *project.Project,
	ps *preparedService,
	prepared map[string]*preparedService,
	done map[string]chan struct{},
	report *Report,
	opts UpOptions,
	logger *slog.Logger,
) error {
	logger = logger.With("service", ps.name, "container", ps.container)

	if err := o.awaitDependencies(ctx, ps, prepared, done, report, logger); err != nil {
		return err
	}

	svc := ps.service
	if svc.Build != nil {
		if err := o.buildIfNeeded(ctx, p, ps, opts, logger); err != nil {
			return err
		}
	}

	plan, err := deployment.BuildContainerPlan(deployment.BuildContainerPlanParams{
		ProjectName: p.Name,
		ServiceName: ps.name,
		Service:     svc,
		Env:         ps.env,
		Mounts:      o.resolveMounts(p, svc, logger),
		Networks:    deployment.ServiceNetworks(svc, p.Document.Networks),
		RunID:       report.RunID,
	})
	if err != nil {
		return err
	}

	if err := o.run(ctx, plan, logger); err != nil {
		return err
	}

	logger.Info("service started", "image", plan.Image)
	report.started(ps.name, ps.container)
	return nil
}

// awaitDependencies blocks until every in-set dependency has finished and
// satisfies its edge condition.
func (o *Orchestrator) awaitDependencies(
	ctx context.Context,
	ps *preparedService,
	prepared map[string]*preparedService,
	done map[string]chan struct{},
	report *Report,
	logger *slog.Logger,
) error {
	for _, dep := range ps.service.DependsOn.Keys() {
		edge, _ := ps.service.DependsOn.Get(dep)
		ch, ok := done[dep]
		if !ok {
			logger.Debug("dependency not in this run, not waiting", "dependency", dep)
			continue
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}

		if depErr := report.failure(dep); depErr != nil {
			if edge.IsRequired() {
				return fmt.Errorf("%w: %s", ErrDependencyFailed, dep)
			}
			logger.Warn("optional dependency failed, continuing", "dependency", dep, "error", depErr)
			continue
		}

		target := prepared[dep]
		if target == nil {
			continue
		}
		err := WaitForCondition(ctx, o.cli, target.container, edge.Condition, o.opts.Readiness, logger)
		if err == nil {
			continue
		}
		if edge.IsRequired() {
			return fmt.Errorf("dependency %s: %w", dep, err)
		}
		logger.Warn("optional dependency not ready, continuing", "dependency", dep, "error", err)
	}
	return nil
}

func (o *Orchestrator) buildIfNeeded(ctx context.Context, p *project.Project, ps *preparedService, opts UpOptions, logger *slog.Logger) error {
	plan := deployment.BuildImagePlan(ps.name, ps.service, p.WorkingDir, opts.NoCache)
	if !opts.Build {
		exists, err := o.cli.ImageExists(ctx, plan.Tag)
		if err != nil {
			return err
		}
		if exists {
			logger.Debug("image present, not building", "image", plan.Tag)
			return nil
		}
	}
	logger.Info("building image", "image", plan.Tag, "context", plan.Context)
	if err := o.cli.Build(ctx, plan); err != nil {
		return fmt.Errorf("build: %w", err)
	}
	return nil
}

// resolveMounts places every volume entry on the host. Entries that cannot be
// parsed or materialized are skipped with a warning.
func (o *Orchestrator) resolveMounts(p *project.Project, svc *compose.Service, logger *slog.Logger) []deployment.MountPlan {
	mc := o.mountContext(p)
	var mounts []deployment.MountPlan
	for _, raw := range svc.Volumes {
		m, err := deployment.ParseMount(raw)
		if err != nil {
			logger.Warn("skipping volume", "volume", raw, "error", err)
			continue
		}
		plan := deployment.ResolveMount(m, mc)
		if err := MaterializeDir(plan.HostPath); err != nil {
			logger.Warn("skipping volume", "volume", raw, "path", plan.HostPath, "error", err)
			continue
		}
		mounts = append(mounts, plan)
	}
	return mounts
}

// run starts the container. A leftover container with the same name is
// stopped, removed and the run retried once.
func (o *Orchestrator) run(ctx context.Context, plan deployment.ContainerPlan, logger *slog.Logger) error {
	err := o.cli.Run(ctx, plan)
	if !IsExists(err) {
		return err
	}

	logger.Info("replacing existing container")
	if err := o.cli.Stop(ctx, plan.Name); err != nil {
		logger.Debug("stop before replace failed", "error", err)
	}
	if err := o.cli.Remove(ctx, plan.Name); err != nil {
		return fmt.Errorf("replace existing container: %w", err)
	}
	return o.cli.Run(ctx, plan)
}

// followLogs streams the logs of every started container until they all
// exit or ctx ends.
func (o *Orchestrator) followLogs(ctx context.Context, report *Report, logger *slog.Logger) {
	var wg sync.WaitGroup
	for _, service := range report.Started {
		container, _ := report.Container(service)
		h, err := o.cli.FollowLogs(ctx, container, o.logWriter(service))
		if err != nil {
			logger.Warn("failed to follow logs", "service", service, "error", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.Wait(); err != nil && ctx.Err() == nil {
				logger.Debug("log stream ended", "service", service, "error", err)
			}
		}()
	}
	wg.Wait()
}

func (o *Orchestrator) logWriter(service string) io.Writer {
	return &prefixWriter{prefix: service + " | ", out: o.opts.Logs}
}

// =============================================================================
// Down
// =============================================================================

// Down stops the project's containers in reverse dependency order, filtered
// to opts.Services when given. Container names are resolved before any
// runtime call, so a missing required variable aborts with nothing stopped.
// Stop and remove failures are recorded and do not stop the loop.
func (o *Orchestrator) Down(ctx context.Context, p *project.Project, opts DownOptions) (*Report, error) {
	report := newReport()
	logger := o.logger.With("project", p.Name, "run_id", report.RunID)

	res, err := deployment.TopologicalSort(deployment.OrderedServices(p.Document))
	if err != nil {
		return report, err
	}
	if unknown := lo.Without(opts.Services, res.Names()...); len(unknown) > 0 {
		return report, fmt.Errorf("%w: %s", ErrUnknownService, strings.Join(unknown, ", "))
	}

	selected := deployment.Select(res.Reverse(), opts.Services)
	containers := make(map[string]string, len(selected))
	for _, ns := range selected {
		if ns.Service == nil {
			continue
		}
		override, err := deployment.Interpolate(ns.Service.ContainerName, p.Env)
		if err != nil {
			return report, fmt.Errorf("service %s: %w", ns.Name, err)
		}
		containers[ns.Name] = deployment.ContainerName(p.Name, ns.Name, override)
	}

	for _, ns := range selected {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if ns.Service == nil {
			report.skipped(ns.Name)
			continue
		}

		container := containers[ns.Name]
		slogger := logger.With("service", ns.Name, "container", container)

		if err := o.cli.Stop(ctx, container); err != nil {
			slogger.Error("failed to stop container", "error", err)
			report.fail(ns.Name, err)
			continue
		}
		if opts.Remove {
			if err := o.cli.Remove(ctx, container); err != nil {
				slogger.Error("failed to remove container", "error", err)
				report.fail(ns.Name, err)
				continue
			}
		}
		slogger.Info("service stopped", "removed", opts.Remove)
		report.stopped(ns.Name)
	}

	logger.Info("down finished", "stopped", len(report.Stopped), "failed", len(report.Failed))
	return report, nil
}

// =============================================================================
// Log Prefixing
// =============================================================================

// prefixWriter prefixes each line written through it. Partial lines are
// buffered until their newline arrives.
type prefixWriter struct {
	prefix string
	out    io.Writer

	mu  sync.Mutex
	buf []byte
}

func (w *prefixWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := append([]byte(w.prefix), w.buf[:i+1]...)
		if _, err := w.out.Write(line); err != nil {
			return len(p), err
		}
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

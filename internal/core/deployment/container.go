package deployment

import (
	"path/filepath"
	"sort"

	"github.com/artpar/container-compose/internal/core/compose"
)

// =============================================================================
// Service Interpolation
// =============================================================================

// InterpolateService returns a copy of svc with variables resolved in every
// string field except environment values, which are resolved after layering
// (see LayerEnvironment). A *MissingVariableError is returned unchanged.
func InterpolateService(svc *compose.Service, env Env) (*compose.Service, error) {
	if svc == nil {
		return nil, nil
	}
	out := *svc

	var err error
	str := func(s string) string {
		if err != nil {
			return s
		}
		var resolved string
		resolved, err = Interpolate(s, env)
		return resolved
	}
	list := func(l []string) []string {
		if err != nil {
			return l
		}
		var resolved []string
		resolved, err = InterpolateAll(l, env)
		return resolved
	}
	mapping := func(m compose.EnvMapping) compose.EnvMapping {
		if err != nil {
			return m
		}
		var resolved map[string]string
		resolved, err = InterpolateMap(m, env)
		return resolved
	}

	out.Image = str(svc.Image)
	out.ContainerName = str(svc.ContainerName)
	out.Hostname = str(svc.Hostname)
	out.User = str(svc.User)
	out.WorkingDir = str(svc.WorkingDir)
	out.Platform = str(svc.Platform)
	out.Command = list(svc.Command)
	out.Entrypoint = list(svc.Entrypoint)
	out.Ports = list(svc.Ports)
	out.Volumes = list(svc.Volumes)
	out.EnvFile = list(svc.EnvFile)
	out.Labels = mapping(svc.Labels)

	if svc.Build != nil {
		build := *svc.Build
		build.Context = str(svc.Build.Context)
		build.Dockerfile = str(svc.Build.Dockerfile)
		build.Target = str(svc.Build.Target)
		build.Args = mapping(svc.Build.Args)
		build.CacheFrom = list(svc.Build.CacheFrom)
		build.Labels = mapping(svc.Build.Labels)
		out.Build = &build
	}

	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ResolveEnvironment layers the container environment and interpolates the
// merged values once.
func ResolveEnvironment(dotenv map[string]string, envFiles []map[string]string, inline map[string]string, env Env) (map[string]string, error) {
	layered, err := LayerEnvironment(dotenv, envFiles, inline)
	if err != nil {
		return nil, err
	}
	return InterpolateMap(layered, env)
}

// =============================================================================
// Container Plan Building Functions
// =============================================================================

// ImageRef returns the image a service runs: its image, else {service}:latest.
func ImageRef(serviceName string, svc *compose.Service) string {
	if svc != nil && svc.Image != "" {
		return svc.Image
	}
	return serviceName + ":latest"
}

// BuildContainerPlan builds a ContainerPlan from an interpolated service.
//
// The function:
//   - Names the container with ContainerName()
//   - Uses the image, or the {service}:latest tag a build produces
//   - Validates port specs
//   - Adds project, service and run labels on top of the service labels
//
// Example:
//
//	plan, err := BuildContainerPlan(BuildContainerPlanParams{
//	    ProjectName: "shop",
//	    ServiceName: "web",
//	    Service:     &compose.Service{Image: "nginx:latest"},
//	})
//	// plan.Name == "shop-web"
func BuildContainerPlan(params BuildContainerPlanParams) (ContainerPlan, error) {
	svc := params.Service
	if svc == nil {
		svc = &compose.Service{}
	}

	ports, err := PortFlags(svc.Ports)
	if err != nil {
		return ContainerPlan{}, err
	}

	labels := make(map[string]string, len(svc.Labels)+3)
	for k, v := range svc.Labels {
		labels[k] = v
	}
	labels[LabelProject] = params.ProjectName
	labels[LabelService] = params.ServiceName
	if params.RunID != "" {
		labels[LabelRunID] = params.RunID
	}

	return ContainerPlan{
		Service:     params.ServiceName,
		Name:        ContainerName(params.ProjectName, params.ServiceName, svc.ContainerName),
		Image:       ImageRef(params.ServiceName, svc),
		User:        svc.User,
		Mounts:      params.Mounts,
		Env:         params.Env,
		Hostname:    svc.Hostname,
		WorkingDir:  svc.WorkingDir,
		Privileged:  svc.Privileged,
		ReadOnly:    svc.ReadOnly,
		Interactive: svc.StdinOpen,
		TTY:         svc.TTY,
		Networks:    params.Networks,
		Ports:       ports,
		Labels:      labels,
		Entrypoint:  svc.Entrypoint,
		Command:     svc.Command,
	}, nil
}

// RunArgs renders the plan as runtime arguments, in a fixed order:
// name, user, mounts, environment (sorted by key), the remaining flags,
// then the entrypoint, image and command tokens. The first entrypoint
// token becomes --entrypoint; the rest precede the command.
func (p ContainerPlan) RunArgs() []string {
	args := []string{"run", "-d", "--name", p.Name}

	if p.User != "" {
		args = append(args, "--user", p.User)
	}
	for _, m := range p.Mounts {
		args = append(args, "-v", m.Flag())
	}
	for _, k := range sortedKeys(p.Env) {
		args = append(args, "-e", k+"="+p.Env[k])
	}

	if p.Hostname != "" {
		args = append(args, "--hostname", p.Hostname)
	}
	if p.WorkingDir != "" {
		args = append(args, "--workdir", p.WorkingDir)
	}
	if p.Privileged {
		args = append(args, "--privileged")
	}
	if p.ReadOnly {
		args = append(args, "--read-only")
	}
	if p.Interactive {
		args = append(args, "-i")
	}
	if p.TTY {
		args = append(args, "-t")
	}
	for _, n := range p.Networks {
		args = append(args, "--network", n)
	}
	for _, port := range p.Ports {
		args = append(args, "-p", port)
	}
	for _, k := range sortedKeys(p.Labels) {
		args = append(args, "--label", k+"="+p.Labels[k])
	}

	if len(p.Entrypoint) > 0 {
		args = append(args, "--entrypoint", p.Entrypoint[0])
	}
	args = append(args, p.Image)
	if len(p.Entrypoint) > 1 {
		args = append(args, p.Entrypoint[1:]...)
	}
	return append(args, p.Command...)
}

// =============================================================================
// Build Plan Functions
// =============================================================================

// BuildImagePlan plans the image build of an interpolated service with a
// build block. Context resolves against workingDir; dockerfile against the
// context. The tag is the service image, else {service}:latest.
func BuildImagePlan(serviceName string, svc *compose.Service, workingDir string, noCache bool) BuildPlan {
	build := svc.Build
	if build == nil {
		build = &compose.Build{}
	}

	context := build.Context
	if context == "" {
		context = "."
	}
	if !filepath.IsAbs(context) {
		context = filepath.Join(workingDir, context)
	}

	dockerfile := build.Dockerfile
	if dockerfile != "" && !filepath.IsAbs(dockerfile) {
		dockerfile = filepath.Join(context, dockerfile)
	}

	return BuildPlan{
		Service:    serviceName,
		Tag:        ImageRef(serviceName, svc),
		Context:    context,
		Dockerfile: dockerfile,
		BuildArgs:  build.Args,
		Target:     build.Target,
		CacheFrom:  build.CacheFrom,
		Labels:     build.Labels,
		NoCache:    noCache,
	}
}

// Args renders the build as runtime arguments, context last.
func (b BuildPlan) Args() []string {
	args := []string{"build", "--tag", b.Tag}
	if b.Dockerfile != "" {
		args = append(args, "--file", b.Dockerfile)
	}
	for _, k := range sortedKeys(b.BuildArgs) {
		args = append(args, "--build-arg", k+"="+b.BuildArgs[k])
	}
	if b.Target != "" {
		args = append(args, "--target", b.Target)
	}
	for _, c := range b.CacheFrom {
		args = append(args, "--cache-from", c)
	}
	for _, k := range sortedKeys(b.Labels) {
		args = append(args, "--label", k+"="+b.Labels[k])
	}
	if b.NoCache {
		args = append(args, "--no-cache")
	}
	return append(args, b.Context)
}

// =============================================================================
// Network Functions
// =============================================================================

// NetworkCreateArgs renders a network declaration as runtime arguments.
func NetworkCreateArgs(name string, network *compose.Network) []string {
	args := []string{"network", "create"}
	if network != nil {
		if network.Driver != "" {
			args = append(args, "--driver", network.Driver)
		}
		for _, k := range sortedKeys(network.DriverOpts) {
			args = append(args, "--opt", k+"="+network.DriverOpts[k])
		}
		if network.Attachable {
			args = append(args, "--attachable")
		}
		if network.EnableIPv6 {
			args = append(args, "--ipv6")
		}
		if network.Internal {
			args = append(args, "--internal")
		}
		for _, k := range sortedKeys(network.Labels) {
			args = append(args, "--label", k+"="+network.Labels[k])
		}
	}
	return append(args, name)
}

func sortedKeys[M ~map[string]string](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

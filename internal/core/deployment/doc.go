// Package deployment provides pure functions for planning a compose project.
//
// This package contains the functional core logic that turns a decoded
// compose document into runtime invocations. All functions are pure
// (no I/O, no side effects): the process environment, file contents and
// home directory are passed in as values.
//
// # Functions
//
//   - Variables: Resolve ${NAME}, ${NAME:-default} and ${NAME:?message} (Interpolate)
//   - Env files: Parse KEY=value files and layer them (ParseEnvFile, LayerEnvironment)
//   - Ordering: Sort services by dependencies, detecting cycles (TopologicalSort)
//   - Naming: Project, container, network and volume names (ProjectName, ContainerName)
//   - Volumes: Classify and resolve mount sources (ClassifyVolumeSource, ResolveMount)
//   - Container: Build run, build and network arguments (BuildContainerPlan, BuildImagePlan)
//
// # Usage
//
// The imperative shell (internal/shell/runtime) uses these pure functions
// to plan each service, then executes the plans through the runtime CLI.
//
//	res, err := deployment.TopologicalSort(deployment.OrderedServices(doc))
//	name := deployment.ContainerName(project, "web", svc.ContainerName)
//	plan, err := deployment.BuildContainerPlan(params)
package deployment

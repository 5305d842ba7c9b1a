package deployment

import (
	"github.com/artpar/container-compose/internal/core/compose"
)

// =============================================================================
// Container Plan Types
// =============================================================================

// ContainerPlan is a planned container run.
// This is the pure output of planning, ready for the shell to execute.
type ContainerPlan struct {
	Service     string
	Name        string
	Image       string
	User        string
	Mounts      []MountPlan
	Env         map[string]string
	Hostname    string
	WorkingDir  string
	Privileged  bool
	ReadOnly    bool
	Interactive bool
	TTY         bool
	Networks    []string
	Ports       []string
	Labels      map[string]string
	Entrypoint  []string
	Command     []string
}

// BuildPlan is a planned image build.
type BuildPlan struct {
	Service    string
	Tag        string
	Context    string
	Dockerfile string
	BuildArgs  map[string]string
	Target     string
	CacheFrom  []string
	Labels     map[string]string
	NoCache    bool
}

// =============================================================================
// Builder Parameter Types
// =============================================================================

// BuildContainerPlanParams contains all inputs for building a container plan.
// Service must already be interpolated (see InterpolateService).
type BuildContainerPlanParams struct {
	ProjectName string
	ServiceName string
	Service     *compose.Service
	Env         map[string]string // layered and interpolated
	Mounts      []MountPlan       // already materialized on the host
	Networks    []string          // runtime network names
	RunID       string
}

// =============================================================================
// Container Labels
// =============================================================================

// Label keys attached to every container the tool starts.
const (
	LabelProject = "container-compose.project"
	LabelService = "container-compose.service"
	LabelRunID   = "container-compose.run-id"
)

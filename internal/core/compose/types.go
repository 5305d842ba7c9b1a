package compose

// =============================================================================
// Document - Root Type
// =============================================================================

// Document is a decoded compose document.
type Document struct {
	Version  string            `yaml:"version,omitempty"`
	Name     string            `yaml:"name,omitempty"`
	Include  []Include         `yaml:"include,omitempty"`
	Services Mapping[*Service] `yaml:"services"`
	Networks Mapping[*Network] `yaml:"networks,omitempty"`
	Volumes  Mapping[*Volume]  `yaml:"volumes,omitempty"`

	// Parsed but not acted upon.
	Configs map[string]any `yaml:"configs,omitempty"`
	Secrets map[string]any `yaml:"secrets,omitempty"`
}

// Include references another document merged ahead of the including one.
type Include struct {
	Path             StringList `yaml:"path"`
	ProjectDirectory string     `yaml:"project_directory,omitempty"`
	EnvFile          StringList `yaml:"env_file,omitempty"`
}

// =============================================================================
// Service Types
// =============================================================================

// Service is one deployable unit. A nil *Service stands for a null entry.
type Service struct {
	Image         string       `yaml:"image,omitempty"`
	Build         *Build       `yaml:"build,omitempty"`
	ContainerName string       `yaml:"container_name,omitempty"`
	Hostname      string       `yaml:"hostname,omitempty"`
	User          string       `yaml:"user,omitempty"`
	WorkingDir    string       `yaml:"working_dir,omitempty"`
	Platform      string       `yaml:"platform,omitempty"`
	Restart       string       `yaml:"restart,omitempty"`
	Privileged    bool         `yaml:"privileged,omitempty"`
	ReadOnly      bool         `yaml:"read_only,omitempty"`
	StdinOpen     bool         `yaml:"stdin_open,omitempty"`
	TTY           bool         `yaml:"tty,omitempty"`
	Command       StringList   `yaml:"command,omitempty"`
	Entrypoint    StringList   `yaml:"entrypoint,omitempty"`
	Ports         PortList     `yaml:"ports,omitempty"`
	Volumes       []string     `yaml:"volumes,omitempty"`
	Environment   EnvMapping   `yaml:"environment,omitempty"`
	EnvFile       StringList   `yaml:"env_file,omitempty"`
	Networks      NetworkList  `yaml:"networks,omitempty"`
	DependsOn     Dependencies `yaml:"depends_on,omitempty"`
	Labels        EnvMapping   `yaml:"labels,omitempty"`

	// Parsed but not acted upon.
	Deploy      any `yaml:"deploy,omitempty"`
	Healthcheck any `yaml:"healthcheck,omitempty"`
}

// Build describes how to build a service image.
type Build struct {
	Context    string     `yaml:"context,omitempty"`
	Dockerfile string     `yaml:"dockerfile,omitempty"`
	Args       EnvMapping `yaml:"args,omitempty"`
	Target     string     `yaml:"target,omitempty"`
	CacheFrom  []string   `yaml:"cache_from,omitempty"`
	Labels     EnvMapping `yaml:"labels,omitempty"`
	Network    string     `yaml:"network,omitempty"`
	ShmSize    string     `yaml:"shm_size,omitempty"`
}

// =============================================================================
// Dependency Types
// =============================================================================

// Condition is the readiness a dependency must reach before a dependent starts.
type Condition string

const (
	ConditionStarted               Condition = "started"
	ConditionHealthy               Condition = "healthy"
	ConditionCompletedSuccessfully Condition = "completed_successfully"
)

// DependencyEdge is one declared dependency of a service.
type DependencyEdge struct {
	Condition Condition `yaml:"condition"`
	Restart   *bool     `yaml:"restart,omitempty"`
	Required  *bool     `yaml:"required,omitempty"`
}

// IsRequired reports whether a failed dependency fails the dependent. Defaults to true.
func (e DependencyEdge) IsRequired() bool {
	return e.Required == nil || *e.Required
}

// Dependencies maps dependency names to edges in declared order.
type Dependencies struct {
	Mapping[DependencyEdge]
}

// =============================================================================
// Network and Volume Types
// =============================================================================

// Network is a top-level network declaration.
type Network struct {
	Name       string      `yaml:"name,omitempty"`
	Driver     string      `yaml:"driver,omitempty"`
	DriverOpts EnvMapping  `yaml:"driver_opts,omitempty"`
	Labels     EnvMapping  `yaml:"labels,omitempty"`
	Attachable bool        `yaml:"attachable,omitempty"`
	EnableIPv6 bool        `yaml:"enable_ipv6,omitempty"`
	Internal   bool        `yaml:"internal,omitempty"`
	External   ExternalRef `yaml:"external,omitempty"`
}

// Volume is a top-level volume declaration.
type Volume struct {
	Name       string      `yaml:"name,omitempty"`
	Driver     string      `yaml:"driver,omitempty"`
	DriverOpts EnvMapping  `yaml:"driver_opts,omitempty"`
	Labels     EnvMapping  `yaml:"labels,omitempty"`
	External   ExternalRef `yaml:"external,omitempty"`
}

// ExternalRef marks a resource managed outside the project.
// It decodes from a boolean or from the legacy {name: x} form.
type ExternalRef struct {
	External bool
	Name     string
}

// IsZero reports whether the reference is unset.
func (r ExternalRef) IsZero() bool {
	return !r.External && r.Name == ""
}

// =============================================================================
// Normalized Field Types
// =============================================================================

// StringList accepts a scalar or a list. A scalar becomes a one-element list.
type StringList []string

// EnvMapping accepts a mapping or a list of KEY=VALUE entries.
// An entry without '=' maps to an empty value.
type EnvMapping map[string]string

// PortList accepts short string, numeric, or long-form port entries
// and normalizes each to [host_ip:][published:]target[/protocol].
type PortList []string

// NetworkList accepts a list of names or a mapping keyed by name.
type NetworkList []string

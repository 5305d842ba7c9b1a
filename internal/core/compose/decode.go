package compose

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Decode
// =============================================================================

// Decode parses a YAML (or JSON) compose document into a Document.
// This is a pure function - no I/O, no side effects.
// Every failure wraps ErrSchemaViolation.
func Decode(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, NewParseError("", "compose document is empty", ErrEmptyInput)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, NewParseError("", err.Error(), ErrInvalidYAML)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, NewParseError("", "compose document is empty", ErrEmptyInput)
	}

	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, NewParseError("", fmt.Sprintf("expected a mapping, got %s", kindName(top)), ErrNotMapping)
	}
	if !hasKey(top, "services") {
		return nil, NewParseError("services", "services key is required", ErrNoServices)
	}

	doc := &Document{}
	if err := top.Decode(doc); err != nil {
		return nil, fieldError("", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Validate checks decode-time invariants on an already decoded document.
func (d *Document) Validate() error {
	for _, name := range d.Services.Keys() {
		svc, _ := d.Services.Get(name)
		if svc == nil {
			continue
		}
		if svc.Image == "" && svc.Build == nil {
			return NewParseError("services."+name, "service must have image or build", ErrServiceNoImage)
		}
	}
	return nil
}

// Encode renders the document in its normalized form.
func (d *Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encode compose document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode compose document: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalYAML decodes the top-level keys. Both include and includes are accepted.
func (d *Document) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return NewParseError("", fmt.Sprintf("expected a mapping, got %s", kindName(node)), ErrNotMapping)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1]
		var err error
		switch key {
		case "version":
			err = value.Decode(&d.Version)
		case "name":
			err = value.Decode(&d.Name)
		case "services":
			err = value.Decode(&d.Services)
		case "networks":
			err = value.Decode(&d.Networks)
		case "volumes":
			err = value.Decode(&d.Volumes)
		case "configs":
			err = decodeOpaque(value, &d.Configs)
		case "secrets":
			err = decodeOpaque(value, &d.Secrets)
		case "include", "includes":
			var includes []Include
			includes, err = decodeIncludes(value)
			if d.Include == nil {
				d.Include = []Include{}
			}
			d.Include = append(d.Include, includes...)
		}
		if err != nil {
			return fieldError(key, err)
		}
	}
	return nil
}

func decodeOpaque(node *yaml.Node, out *map[string]any) error {
	if isNull(node) {
		*out = map[string]any{}
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return NewParseError("", fmt.Sprintf("expected a mapping, got %s", kindName(node)), ErrInvalidShape)
	}
	return node.Decode(out)
}

func decodeIncludes(node *yaml.Node) ([]Include, error) {
	if isNull(node) {
		return nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, NewParseError("", fmt.Sprintf("expected a list, got %s", kindName(node)), ErrInvalidShape)
	}

	out := make([]Include, 0, len(node.Content))
	for i, item := range node.Content {
		field := fmt.Sprintf("[%d]", i)
		switch item.Kind {
		case yaml.ScalarNode:
			out = append(out, Include{Path: StringList{item.Value}})
		case yaml.MappingNode:
			var raw struct {
				Path             StringList `yaml:"path"`
				File             string     `yaml:"file"`
				ProjectDirectory string     `yaml:"project_directory"`
				EnvFile          StringList `yaml:"env_file"`
			}
			if err := item.Decode(&raw); err != nil {
				return nil, fieldError(field, err)
			}
			inc := Include{Path: raw.Path, ProjectDirectory: raw.ProjectDirectory, EnvFile: raw.EnvFile}
			if raw.File != "" {
				inc.Path = append(inc.Path, raw.File)
			}
			if len(inc.Path) == 0 {
				return nil, NewParseError(field, "include must name a path", ErrInvalidShape)
			}
			out = append(out, inc)
		default:
			return nil, NewParseError(field, fmt.Sprintf("expected a path or mapping, got %s", kindName(item)), ErrInvalidShape)
		}
	}
	return out, nil
}

func hasKey(node *yaml.Node, key string) bool {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return true
		}
	}
	return false
}

// =============================================================================
// Scalar-or-List Normalization
// =============================================================================

// UnmarshalYAML accepts a scalar or a list of scalars.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*l = StringList{node.Value}
		return nil
	case yaml.SequenceNode:
		items, err := scalarValues(node)
		if err != nil {
			return err
		}
		*l = items
		return nil
	default:
		return NewParseError("", fmt.Sprintf("expected a string or list, got %s", kindName(node)), ErrInvalidShape)
	}
}

// UnmarshalYAML accepts {KEY: value} or [KEY=value, ...].
func (m *EnvMapping) UnmarshalYAML(node *yaml.Node) error {
	out := EnvMapping{}
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			switch {
			case isNull(value):
				out[key.Value] = ""
			case value.Kind == yaml.ScalarNode:
				out[key.Value] = value.Value
			default:
				return NewParseError(key.Value, fmt.Sprintf("expected a scalar, got %s", kindName(value)), ErrInvalidShape)
			}
		}
	case yaml.SequenceNode:
		items, err := scalarValues(node)
		if err != nil {
			return err
		}
		for _, item := range items {
			key, value, _ := strings.Cut(item, "=")
			out[key] = value
		}
	default:
		return NewParseError("", fmt.Sprintf("expected a mapping or list, got %s", kindName(node)), ErrInvalidShape)
	}
	*m = out
	return nil
}

// UnmarshalYAML accepts "8080:80", 80, or the long form {target, published, host_ip, protocol}.
func (p *PortList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return NewParseError("", fmt.Sprintf("expected a list, got %s", kindName(node)), ErrInvalidShape)
	}

	out := make(PortList, 0, len(node.Content))
	for i, item := range node.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			out = append(out, item.Value)
		case yaml.MappingNode:
			var long struct {
				Target    string `yaml:"target"`
				Published string `yaml:"published"`
				HostIP    string `yaml:"host_ip"`
				Protocol  string `yaml:"protocol"`
			}
			if err := item.Decode(&long); err != nil {
				return fieldError(fmt.Sprintf("[%d]", i), err)
			}
			if long.Target == "" {
				return NewParseError(fmt.Sprintf("[%d].target", i), "target is required", ErrInvalidShape)
			}
			out = append(out, longPortSpec(long.HostIP, long.Published, long.Target, long.Protocol))
		default:
			return NewParseError(fmt.Sprintf("[%d]", i), fmt.Sprintf("expected a port, got %s", kindName(item)), ErrInvalidShape)
		}
	}
	*p = out
	return nil
}

func longPortSpec(hostIP, published, target, protocol string) string {
	spec := target
	if published != "" {
		spec = published + ":" + spec
	}
	if hostIP != "" {
		if published == "" {
			spec = ":" + spec
		}
		spec = hostIP + ":" + spec
	}
	if protocol != "" {
		spec += "/" + protocol
	}
	return spec
}

// UnmarshalYAML accepts [name, ...] or {name: {...}, ...}.
func (n *NetworkList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		items, err := scalarValues(node)
		if err != nil {
			return err
		}
		*n = items
	case yaml.MappingNode:
		out := make(NetworkList, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			out = append(out, node.Content[i].Value)
		}
		*n = out
	default:
		return NewParseError("", fmt.Sprintf("expected a list or mapping, got %s", kindName(node)), ErrInvalidShape)
	}
	return nil
}

// =============================================================================
// Dependencies
// =============================================================================

// ParseCondition normalizes a condition name. Both the short names and the
// compose service_* names are accepted. Empty means started.
func ParseCondition(s string) (Condition, error) {
	switch s {
	case "", string(ConditionStarted), types.ServiceConditionStarted:
		return ConditionStarted, nil
	case string(ConditionHealthy), types.ServiceConditionHealthy:
		return ConditionHealthy, nil
	case string(ConditionCompletedSuccessfully), types.ServiceConditionCompletedSuccessfully:
		return ConditionCompletedSuccessfully, nil
	default:
		return "", NewParseError("", fmt.Sprintf("unknown condition %q", s), ErrUnknownCondition)
	}
}

// UnmarshalYAML accepts a name, a list of names, or a mapping of name to edge.
// Names given as a scalar or list get condition started.
func (d *Dependencies) UnmarshalYAML(node *yaml.Node) error {
	var out Dependencies
	switch node.Kind {
	case yaml.ScalarNode:
		out.Set(node.Value, DependencyEdge{Condition: ConditionStarted})
	case yaml.SequenceNode:
		names, err := scalarValues(node)
		if err != nil {
			return fieldError("depends_on", err)
		}
		for _, name := range names {
			out.Set(name, DependencyEdge{Condition: ConditionStarted})
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			name, value := node.Content[i].Value, node.Content[i+1]
			edge := DependencyEdge{Condition: ConditionStarted}
			if !isNull(value) {
				if err := value.Decode(&edge); err != nil {
					return fieldError("depends_on."+name, err)
				}
			}
			out.Set(name, edge)
		}
	default:
		return NewParseError("depends_on", fmt.Sprintf("expected a string, list or mapping, got %s", kindName(node)), ErrInvalidShape)
	}
	*d = out
	return nil
}

// UnmarshalYAML decodes an edge, normalizing its condition.
func (e *DependencyEdge) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return NewParseError("", fmt.Sprintf("expected a mapping, got %s", kindName(node)), ErrInvalidShape)
	}
	var raw struct {
		Condition string `yaml:"condition"`
		Restart   *bool  `yaml:"restart"`
		Required  *bool  `yaml:"required"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	cond, err := ParseCondition(raw.Condition)
	if err != nil {
		return fieldError("condition", err)
	}
	*e = DependencyEdge{Condition: cond, Restart: raw.Restart, Required: raw.Required}
	return nil
}

// =============================================================================
// Build and External References
// =============================================================================

// UnmarshalYAML accepts a context path or a build mapping.
func (b *Build) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*b = Build{Context: node.Value}
		return nil
	}
	type plain Build
	var raw plain
	if err := node.Decode(&raw); err != nil {
		return fieldError("build", err)
	}
	*b = Build(raw)
	return nil
}

// UnmarshalYAML accepts true/false or the legacy {name: x} form.
func (r *ExternalRef) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var external bool
		if err := node.Decode(&external); err != nil {
			return NewParseError("external", fmt.Sprintf("expected a boolean, got %q", node.Value), ErrInvalidShape)
		}
		*r = ExternalRef{External: external}
	case yaml.MappingNode:
		var raw struct {
			Name string `yaml:"name"`
		}
		if err := node.Decode(&raw); err != nil {
			return fieldError("external", err)
		}
		*r = ExternalRef{External: true, Name: raw.Name}
	default:
		return NewParseError("external", fmt.Sprintf("expected a boolean or mapping, got %s", kindName(node)), ErrInvalidShape)
	}
	return nil
}

// MarshalYAML encodes the boolean form unless a legacy name is set.
func (r ExternalRef) MarshalYAML() (any, error) {
	if r.Name != "" {
		return map[string]string{"name": r.Name}, nil
	}
	return r.External, nil
}

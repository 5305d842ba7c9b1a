package deployment

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/artpar/container-compose/internal/core/compose"
)

// =============================================================================
// Volume Resolution
// =============================================================================

// VolumeKind classifies a mount source.
type VolumeKind int

const (
	// VolumeBind is a host path relative to the working directory or absolute.
	VolumeBind VolumeKind = iota
	// VolumeNamed is a bare name backed by a synthesized project directory.
	VolumeNamed
)

func (k VolumeKind) String() string {
	if k == VolumeNamed {
		return "named"
	}
	return "bind"
}

// Mount is a parsed source:target[:mode] entry.
type Mount struct {
	Source string
	Target string
	Mode   string
}

// MountPlan is a mount resolved to a host directory.
type MountPlan struct {
	Kind     VolumeKind
	Name     string // volume name for VolumeNamed, the raw source otherwise
	HostPath string
	Target   string
	Mode     string
}

// Flag renders the mount as a -v value.
func (m MountPlan) Flag() string {
	if m.Mode != "" {
		return fmt.Sprintf("%s:%s:%s", m.HostPath, m.Target, m.Mode)
	}
	return fmt.Sprintf("%s:%s", m.HostPath, m.Target)
}

// MountContext carries what ResolveMount needs to place a source on the host.
type MountContext struct {
	WorkingDir  string
	Home        string
	VolumesRoot string // DefaultVolumesRoot(Home) when empty
	Project     string
	Volumes     compose.Mapping[*compose.Volume]
}

// ParseMount splits a source:target[:mode] entry.
// Entries without a source (anonymous volumes) and ~user sources are rejected.
func ParseMount(raw string) (Mount, error) {
	parts := strings.Split(raw, ":")
	switch {
	case len(parts) < 2 || len(parts) > 3:
		return Mount{}, fmt.Errorf("%w: %q must be source:target[:mode]", ErrInvalidMount, raw)
	case parts[0] == "" || parts[1] == "":
		return Mount{}, fmt.Errorf("%w: %q has an empty source or target", ErrInvalidMount, raw)
	case strings.HasPrefix(parts[0], "~") && parts[0] != "~" && !strings.HasPrefix(parts[0], "~/"):
		return Mount{}, fmt.Errorf("%w: %q: only ~ and ~/ are expanded", ErrInvalidMount, raw)
	}

	m := Mount{Source: parts[0], Target: parts[1]}
	if len(parts) == 3 {
		m.Mode = parts[2]
	}
	return m, nil
}

// ClassifyVolumeSource decides whether source is a host path or a volume name.
// Sources containing a path separator or starting with ".", ".." or "~" are
// host paths; anything else is a named volume.
//
// Example:
//
//	ClassifyVolumeSource("./data") // VolumeBind
//	ClassifyVolumeSource("a/b")    // VolumeBind
//	ClassifyVolumeSource("pgdata") // VolumeNamed
func ClassifyVolumeSource(source string) VolumeKind {
	if strings.Contains(source, "/") ||
		strings.HasPrefix(source, ".") ||
		strings.HasPrefix(source, "~") {
		return VolumeBind
	}
	return VolumeNamed
}

// ResolveMount places a mount source on the host.
// Bind sources resolve against the working directory with ~ expanded to Home.
// Named sources map to {VolumesRoot}/{project}/{name}.
func ResolveMount(m Mount, mc MountContext) MountPlan {
	plan := MountPlan{Name: m.Source, Target: m.Target, Mode: m.Mode}

	if ClassifyVolumeSource(m.Source) == VolumeBind {
		plan.Kind = VolumeBind
		plan.HostPath = ResolveBindPath(m.Source, mc.WorkingDir, mc.Home)
		return plan
	}

	root := mc.VolumesRoot
	if root == "" {
		root = DefaultVolumesRoot(mc.Home)
	}
	volume, _ := mc.Volumes.Get(m.Source)
	plan.Kind = VolumeNamed
	plan.HostPath = filepath.Join(root, mc.Project, VolumeDirName(m.Source, volume))
	return plan
}

// ResolveBindPath returns an absolute, cleaned host path for a bind source.
// Only "~" and "~/" prefixes expand to home.
func ResolveBindPath(source, workingDir, home string) string {
	switch {
	case source == "~":
		return filepath.Clean(home)
	case strings.HasPrefix(source, "~/"):
		return filepath.Join(home, source[2:])
	case filepath.IsAbs(source):
		return filepath.Clean(source)
	default:
		return filepath.Join(workingDir, source)
	}
}

// NamedVolumePath returns the backing directory of a top-level volume.
func NamedVolumePath(key string, volume *compose.Volume, mc MountContext) string {
	root := mc.VolumesRoot
	if root == "" {
		root = DefaultVolumesRoot(mc.Home)
	}
	return filepath.Join(root, mc.Project, VolumeDirName(key, volume))
}

package deployment

import (
	"fmt"
	"path/filepath"

	"github.com/artpar/container-compose/internal/core/compose"
)

// =============================================================================
// Resource Naming Functions
// =============================================================================

// ProjectName returns the explicit document name, else the base name of workingDir.
//
// Example:
//
//	ProjectName("", "/home/me/shop") // returns "shop"
//	ProjectName("store", "/home/me/shop") // returns "store"
func ProjectName(explicit, workingDir string) string {
	if explicit != "" {
		return explicit
	}
	return filepath.Base(filepath.Clean(workingDir))
}

// ContainerName returns the service's container_name override, else
// {project}-{service}.
//
// Example:
//
//	ContainerName("shop", "web", "") // returns "shop-web"
func ContainerName(project, service, override string) string {
	if override != "" {
		return override
	}
	return fmt.Sprintf("%s-%s", project, service)
}

// NetworkName returns the runtime name for a declared network: its name
// override, else the legacy external name, else the document key.
func NetworkName(key string, network *compose.Network) string {
	if network == nil {
		return key
	}
	if network.Name != "" {
		return network.Name
	}
	if network.External.Name != "" {
		return network.External.Name
	}
	return key
}

// VolumeDirName returns the directory name backing a named volume.
func VolumeDirName(key string, volume *compose.Volume) string {
	if volume == nil {
		return key
	}
	if volume.Name != "" {
		return volume.Name
	}
	if volume.External.Name != "" {
		return volume.External.Name
	}
	return key
}

// DefaultVolumesRoot returns {home}/.containers/Volumes.
func DefaultVolumesRoot(home string) string {
	return filepath.Join(home, ".containers", "Volumes")
}

// ServiceNetworks resolves the networks a service joins to runtime names.
// Networks the document does not declare are used by key.
func ServiceNetworks(svc *compose.Service, networks compose.Mapping[*compose.Network]) []string {
	if svc == nil || len(svc.Networks) == 0 {
		return nil
	}
	out := make([]string, 0, len(svc.Networks))
	for _, key := range svc.Networks {
		network, _ := networks.Get(key)
		out = append(out, NetworkName(key, network))
	}
	return out
}

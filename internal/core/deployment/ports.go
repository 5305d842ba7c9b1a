package deployment

import (
	"fmt"

	"github.com/docker/go-connections/nat"
)

// =============================================================================
// Port Validation
// =============================================================================

// PortFlags validates each [ip:][host:]container[/proto] entry and returns
// them as -p values. Validation follows the Docker port spec grammar.
//
// Example:
//
//	PortFlags([]string{"8080:80", "53:53/udp"}) // ["8080:80", "53:53/udp"], nil
//	PortFlags([]string{"http"})                 // nil, ErrInvalidPort
func PortFlags(ports []string) ([]string, error) {
	if len(ports) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(ports))
	for _, p := range ports {
		if _, err := nat.ParsePortSpec(p); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPort, p, err)
		}
		out = append(out, p)
	}
	return out, nil
}

package runtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	dockercontainer "github.com/docker/docker/api/types/container"
)

// inspectDocument accepts Docker-shaped inspect output and runtimes that
// report a flat top-level status.
type inspectDocument struct {
	dockercontainer.InspectResponse
	Status   string `json:"status"`
	ExitCode *int   `json:"exitCode"`
}

// ParseInspect decodes inspect output (a single object or an array holding
// one) into a ContainerStatus.
func ParseInspect(name string, data []byte) (ContainerStatus, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ContainerStatus{}, fmt.Errorf("inspect %s: %w", name, ErrNotFound)
	}

	var doc inspectDocument
	if data[0] == '[' {
		var docs []inspectDocument
		if err := json.Unmarshal(data, &docs); err != nil {
			return ContainerStatus{}, fmt.Errorf("inspect %s: %w", name, err)
		}
		if len(docs) == 0 {
			return ContainerStatus{}, fmt.Errorf("inspect %s: %w", name, ErrNotFound)
		}
		doc = docs[0]
	} else if err := json.Unmarshal(data, &doc); err != nil {
		return ContainerStatus{}, fmt.Errorf("inspect %s: %w", name, err)
	}

	status := ContainerStatus{Name: name, State: strings.ToLower(doc.Status)}
	if doc.ExitCode != nil {
		status.ExitCode = *doc.ExitCode
	} else {
		status.ExitUnknown = true
	}
	if doc.ContainerJSONBase != nil && doc.ContainerJSONBase.State != nil {
		status.ExitUnknown = false
		st := doc.ContainerJSONBase.State
		if st.Status != "" {
			status.State = string(st.Status)
		} else if st.Running {
			status.State = dockercontainer.StateRunning
		}
		status.ExitCode = st.ExitCode
		if st.Health != nil {
			status.Health = string(st.Health.Status)
		}
	}
	return status, nil
}

package deployment

import (
	"strings"

	"dario.cat/mergo"
)

// =============================================================================
// Env Files
// =============================================================================

// ParseEnvFile parses KEY=value lines. Lines are trimmed; blank lines and
// lines starting with # are ignored; the first = splits key from value.
// Quotes and escapes are not interpreted. Lines without = are ignored.
func ParseEnvFile(content string) map[string]string {
	vars := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		vars[key] = value
	}
	return vars
}

// LayerEnvironment merges the container environment in precedence order:
// the project .env first, then each env_file in declared order (later files
// win), then inline environment entries, which win over everything.
func LayerEnvironment(dotenv map[string]string, envFiles []map[string]string, inline map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(dotenv)+len(inline))
	layers := make([]map[string]string, 0, len(envFiles)+2)
	layers = append(layers, dotenv)
	layers = append(layers, envFiles...)
	layers = append(layers, inline)

	for _, layer := range layers {
		if len(layer) == 0 {
			continue
		}
		if err := mergo.Merge(&out, layer, mergo.WithOverride); err != nil {
			return nil, err
		}
	}
	return out, nil
}

package compose

import (
	"context"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// ValidateStrict checks a single document against the upstream compose schema.
// Interpolation, includes and normalization are skipped so the check sees the
// document as written.
func ValidateStrict(ctx context.Context, content []byte, workingDir string) error {
	if strings.TrimSpace(string(content)) == "" {
		return NewParseError("", "compose document is empty", ErrEmptyInput)
	}

	var dict map[string]any
	if err := yaml.Unmarshal(content, &dict); err != nil {
		return NewParseError("", err.Error(), ErrInvalidYAML)
	}
	if dict == nil {
		return NewParseError("", "compose document is empty", ErrEmptyInput)
	}

	_, err := loader.LoadWithContext(ctx, types.ConfigDetails{
		WorkingDir: workingDir,
		ConfigFiles: []types.ConfigFile{
			{
				Content: content,
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("strict-check", false)
		opts.SkipInterpolation = true
		opts.SkipNormalization = true
		opts.SkipInclude = true
		opts.SkipExtends = true
		opts.SkipConsistencyCheck = true
		opts.SkipResolveEnvironment = true
	})
	if err != nil {
		return NewParseError("", err.Error(), ErrSchemaViolation)
	}
	return nil
}

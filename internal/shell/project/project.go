// Package project locates and loads a compose project from disk.
package project

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/artpar/container-compose/internal/core/compose"
	"github.com/artpar/container-compose/internal/core/deployment"
)

// =============================================================================
// Project
// =============================================================================

// DefaultFiles are probed in order when no compose file is given.
var DefaultFiles = []string{
	"compose.yml",
	"compose.yaml",
	"docker-compose.yml",
	"docker-compose.yaml",
}

// ErrNoComposeFile is returned when no compose file can be found.
var ErrNoComposeFile = errors.New("no compose file found")

// ErrIncludeCycle is returned when includes reference each other.
var ErrIncludeCycle = errors.New("include cycle")

// Project is a loaded compose document with its environment.
type Project struct {
	Name       string
	WorkingDir string
	Home       string
	Files      []string // primary file first, then included files
	Document   *compose.Document
	DotEnv     map[string]string
	Env        deployment.Env
}

// LoadOptions controls Load.
type LoadOptions struct {
	// WorkingDir defaults to the current directory.
	WorkingDir string
	// File is the compose file, relative to WorkingDir. Empty probes DefaultFiles.
	File string
	// ProcessEnv defaults to os.Environ().
	ProcessEnv map[string]string
	// Home defaults to os.UserHomeDir().
	Home string
}

// Load reads the compose file, resolves includes and reads .env.
func Load(opts LoadOptions) (*Project, error) {
	dir := opts.WorkingDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("working directory: %w", err)
		}
		dir = wd
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("working directory: %w", err)
	}

	file, err := findFile(dir, opts.File)
	if err != nil {
		return nil, err
	}

	home := opts.Home
	if home == "" {
		home, _ = os.UserHomeDir()
	}

	processEnv := opts.ProcessEnv
	if processEnv == nil {
		processEnv = environ()
	}

	dotenv, err := readDotEnv(dir)
	if err != nil {
		return nil, err
	}

	l := &loader{seen: map[string]bool{}}
	doc, err := l.load(file)
	if err != nil {
		return nil, err
	}

	return &Project{
		Name:       deployment.ProjectName(doc.Name, dir),
		WorkingDir: dir,
		Home:       home,
		Files:      l.files,
		Document:   doc,
		DotEnv:     dotenv,
		Env:        deployment.Env{Process: processEnv, File: dotenv},
	}, nil
}

func findFile(dir, file string) (string, error) {
	if file != "" {
		if !filepath.IsAbs(file) {
			file = filepath.Join(dir, file)
		}
		if _, err := os.Stat(file); err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoComposeFile, err)
		}
		return file, nil
	}
	for _, name := range DefaultFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s (tried %s)", ErrNoComposeFile, dir, strings.Join(DefaultFiles, ", "))
}

func readDotEnv(dir string) (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, ".env"))
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read .env: %w", err)
	}
	return deployment.ParseEnvFile(string(data)), nil
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// =============================================================================
// Document Loading
// =============================================================================

type loader struct {
	seen  map[string]bool // files on the current include path
	files []string
}

// load decodes path and folds its includes in ahead of it.
func (l *loader) load(path string) (*compose.Document, error) {
	if l.seen[path] {
		return nil, fmt.Errorf("%w: %s", ErrIncludeCycle, path)
	}
	l.seen[path] = true
	defer delete(l.seen, path)
	l.files = append(l.files, path)

	doc, err := ReadDocument(path)
	if err != nil {
		return nil, err
	}

	var docs []*compose.Document
	base := filepath.Dir(path)
	for _, inc := range doc.Include {
		for _, p := range inc.Path {
			if !filepath.IsAbs(p) {
				p = filepath.Join(base, p)
			}
			included, err := l.load(p)
			if err != nil {
				return nil, fmt.Errorf("include %s: %w", p, err)
			}
			docs = append(docs, included)
		}
	}
	if len(docs) == 0 {
		return doc, nil
	}
	return compose.MergeAll(append(docs, doc)...), nil
}

// ReadDocument decodes one compose file. JSON files may carry comments.
func ReadDocument(path string) (*compose.Document, error) {
	data, err := readSource(path)
	if err != nil {
		return nil, err
	}
	doc, err := compose.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// readSource reads a compose file, stripping comments from JSON files.
func readSource(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	return data, nil
}

// =============================================================================
// Env Files
// =============================================================================

// EnvFiles reads env_file entries relative to the working directory, in
// order. Missing or unreadable files are skipped with a warning.
func (p *Project) EnvFiles(paths []string, logger *slog.Logger) []map[string]string {
	if logger == nil {
		logger = slog.Default()
	}
	var out []map[string]string
	for _, path := range paths {
		if !filepath.IsAbs(path) {
			path = filepath.Join(p.WorkingDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("skipping env file", "path", path, "error", err)
			continue
		}
		out = append(out, deployment.ParseEnvFile(string(data)))
	}
	return out
}

// Content returns the primary compose file's bytes, comments stripped from
// JSON files.
func (p *Project) Content() ([]byte, error) {
	if len(p.Files) == 0 {
		return nil, ErrNoComposeFile
	}
	return readSource(p.Files[0])
}

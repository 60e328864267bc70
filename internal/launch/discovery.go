package launch

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/ynput/openpype/internal/errors"
	"github.com/ynput/openpype/internal/logging"
)

// Discovered is a hook together with where it came from.
type Discovered struct {
	Source string
	Hook   Hook
}

// DiscoveryError records a manifest that could not be loaded.
type DiscoveryError struct {
	Path string
	Err  error
}

func (e DiscoveryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e DiscoveryError) Unwrap() error { return e.Err }

// DiscoveryResult holds every hook found, split by kind.
type DiscoveryResult struct {
	Pre    []Discovered
	Post   []Discovered
	Errors []DiscoveryError
	// Files lists the manifests that loaded successfully
	Files []string
}

// IsManifest reports whether path has a hook manifest extension.
func IsManifest(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".toml":
		return true
	}
	return false
}

// Discover collects hooks from registry and from every manifest found under
// paths. A manifest that fails to load is recorded in Errors and logged; the
// others still load. Missing paths are skipped.
func Discover(paths []string, registry *Registry, logger *logging.Logger) DiscoveryResult {
	if logger == nil {
		logger = logging.NopLogger()
	}

	var result DiscoveryResult
	result.Pre, result.Post = registry.Instantiate()

	for _, file := range manifestFiles(paths, logger) {
		hooks, err := LoadManifest(file)
		if err != nil {
			logger.Warn("failed to load hook manifest", "path", file, "error", err)
			result.Errors = append(result.Errors, DiscoveryError{Path: file, Err: err})
			continue
		}
		result.Files = append(result.Files, file)
		for _, h := range hooks {
			d := Discovered{Source: file, Hook: h}
			if h.Kind() == KindPost {
				result.Post = append(result.Post, d)
			} else {
				result.Pre = append(result.Pre, d)
			}
		}
	}

	logger.Debug("hooks discovered",
		"pre", len(result.Pre),
		"post", len(result.Post),
		"manifests", len(result.Files),
		"errors", len(result.Errors),
	)
	return result
}

// manifestFiles walks paths and returns manifest files in lexical order,
// each file once.
func manifestFiles(paths []string, logger *logging.Logger) []string {
	seen := make(map[string]struct{})
	var files []string
	for _, root := range paths {
		if root == "" {
			continue
		}
		info, err := os.Stat(root)
		if err != nil {
			logger.Debug("hook path skipped", "path", root, "error", err)
			continue
		}
		if !info.IsDir() {
			if IsManifest(root) {
				if _, dup := seen[root]; !dup {
					seen[root] = struct{}{}
					files = append(files, root)
				}
			}
			continue
		}
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if !IsManifest(path) {
				return nil
			}
			if _, dup := seen[path]; dup {
				return nil
			}
			seen[path] = struct{}{}
			files = append(files, path)
			return nil
		})
	}
	return files
}

// Manifest is the file format for declarative hooks.
type Manifest struct {
	Hooks []HookSpec `yaml:"hooks" toml:"hooks"`
}

// HookSpec declares one hook.
type HookSpec struct {
	Name  string `yaml:"name" toml:"name"`
	Kind  string `yaml:"kind" toml:"kind"`
	Order *int   `yaml:"order" toml:"order"`

	Filter `yaml:",inline"`

	// Actions run in sequence when the hook executes
	Actions []Action `yaml:"actions" toml:"actions"`
}

// LoadManifest parses a YAML or TOML manifest. Unknown fields are errors so
// that typos do not silently disable a hook.
func LoadManifest(path string) ([]Hook, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		md, err := toml.Decode(string(raw), &m)
		if err != nil {
			return nil, errors.Join(errors.ErrInvalidInput, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			sort.Strings(keys)
			return nil, errors.Wrapf(errors.ErrInvalidInput, "unknown manifest keys %v", keys)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&m); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, errors.Join(errors.ErrInvalidInput, err)
		}
	}

	return m.build()
}

func (m Manifest) build() ([]Hook, error) {
	hooks := make([]Hook, 0, len(m.Hooks))
	names := make(map[string]struct{}, len(m.Hooks))
	for i, spec := range m.Hooks {
		if spec.Name == "" {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "hook %d has no name", i)
		}
		if _, dup := names[spec.Name]; dup {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "hook %q declared twice", spec.Name)
		}
		names[spec.Name] = struct{}{}

		kind, ok := ParseKind(spec.Kind)
		if !ok {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "hook %q has unknown kind %q", spec.Name, spec.Kind)
		}
		if len(spec.Actions) == 0 {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "hook %q has no actions", spec.Name)
		}
		for j, a := range spec.Actions {
			if err := a.validate(); err != nil {
				return nil, errors.Wrapf(err, "hook %q action %d", spec.Name, j)
			}
		}

		hooks = append(hooks, &ManifestHook{
			BaseHook: BaseHook{
				HookName:   spec.Name,
				HookKind:   kind,
				HookOrder:  spec.Order,
				HookFilter: spec.Filter,
			},
			Actions: spec.Actions,
		})
	}
	return hooks, nil
}

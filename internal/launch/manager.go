package launch

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/ynput/openpype/internal/config"
	"github.com/ynput/openpype/internal/errors"
	"github.com/ynput/openpype/internal/event"
	"github.com/ynput/openpype/internal/logging"
)

// Application is one configured application variant resolved for the
// current platform.
type Application struct {
	Group   string
	Variant string
	Host    string
	Label   string
	// Executables are candidate paths or command names, first match wins
	Executables []string
	Arguments   []string
	// Environment holds group then variant "KEY=value" entries
	Environment []string
}

// FullName is "<group>/<variant>", e.g. "maya/2024".
func (a Application) FullName() string {
	return a.Group + "/" + a.Variant
}

// Manager resolves applications from configuration and launches them.
type Manager struct {
	cfg      *config.Config
	apps     map[string]Application
	groups   map[string][]Application
	platform string
	registry *Registry
	spawner  Spawner
	logger   *logging.Logger
	bus      *event.Bus
	baseEnv  map[string]string
	baseData map[string]any
	lookPath func(string) (string, error)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithPlatform overrides the platform used for executables and hook filters.
func WithPlatform(platform string) ManagerOption {
	return func(m *Manager) { m.platform = NormalizePlatform(platform) }
}

// WithRegistry replaces the default hook registry.
func WithRegistry(r *Registry) ManagerOption {
	return func(m *Manager) { m.registry = r }
}

// WithSpawner replaces the os/exec spawner.
func WithSpawner(s Spawner) ManagerOption {
	return func(m *Manager) { m.spawner = s }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithBus sets the event bus receiving launch events.
func WithBus(b *event.Bus) ManagerOption {
	return func(m *Manager) { m.bus = b }
}

// WithEnvironment sets the base environment of launched processes instead of
// the current process environment.
func WithEnvironment(env map[string]string) ManagerOption {
	return func(m *Manager) { m.baseEnv = env }
}

// WithData seeds every launch context's data (project, asset, task, ...).
func WithData(data map[string]any) ManagerOption {
	return func(m *Manager) { m.baseData = data }
}

// WithLookPath replaces exec.LookPath for executable resolution.
func WithLookPath(fn func(string) (string, error)) ManagerOption {
	return func(m *Manager) { m.lookPath = fn }
}

// NewManager builds the application table from cfg.
func NewManager(cfg *config.Config, opts ...ManagerOption) *Manager {
	if cfg == nil {
		cfg = config.Default()
	}
	m := &Manager{
		cfg:      cfg,
		apps:     make(map[string]Application),
		groups:   make(map[string][]Application),
		platform: runtime.GOOS,
		logger:   logging.NopLogger(),
		lookPath: exec.LookPath,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = NewDefaultRegistry()
	}
	if m.baseEnv == nil {
		m.baseEnv = EnvMap(os.Environ())
	}

	applications := cfg.Applications
	if len(applications) == 0 {
		applications = config.DefaultApplications()
	}
	for group, g := range applications {
		for variant, v := range g.Variants {
			app := Application{
				Group:       group,
				Variant:     variant,
				Host:        g.HostName(group),
				Label:       v.Label,
				Executables: v.Executables[m.platform],
				Arguments:   v.Arguments[m.platform],
				Environment: append(append([]string(nil), g.Environment...), v.Environment...),
			}
			if app.Label == "" {
				app.Label = strings.TrimSpace(g.Label + " " + variant)
			}
			m.apps[app.FullName()] = app
			m.groups[group] = append(m.groups[group], app)
		}
	}
	for group := range m.groups {
		sortVariants(m.groups[group])
	}
	return m
}

// Applications returns every configured application sorted by full name.
func (m *Manager) Applications() []Application {
	apps := make([]Application, 0, len(m.apps))
	for _, a := range m.apps {
		apps = append(apps, a)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].FullName() < apps[j].FullName() })
	return apps
}

// Find resolves "group/variant", or "group" to its newest variant.
func (m *Manager) Find(name string) (Application, error) {
	if app, ok := m.apps[name]; ok {
		return app, nil
	}
	if variants := m.groups[strings.TrimSuffix(name, "/")]; len(variants) > 0 {
		return variants[len(variants)-1], nil
	}
	return Application{}, errors.Wrapf(errors.ErrApplicationNotFound, "%q", name)
}

// FindExecutable returns the first configured executable that exists, either
// as a path or on PATH.
func (m *Manager) FindExecutable(app Application) (string, error) {
	for _, candidate := range app.Executables {
		candidate = expandUser(os.ExpandEnv(candidate))
		if candidate == "" {
			continue
		}
		if filepath.IsAbs(candidate) {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
			continue
		}
		if path, err := m.lookPath(candidate); err == nil {
			return path, nil
		}
	}
	m.logger.Error("application executable not found",
		"app", app.FullName(),
		"candidates", app.Executables,
	)
	return "", errors.NewExecutableNotFoundError(app.FullName(), app.Executables)
}

// HookPaths returns the configured hook paths with relative entries resolved
// against the repos root.
func (m *Manager) HookPaths() []string {
	paths := make([]string, 0, len(m.cfg.Launch.HookPaths))
	for _, p := range m.cfg.Launch.HookPaths {
		p = expandUser(os.ExpandEnv(p))
		if !filepath.IsAbs(p) && m.cfg.Paths.ReposRoot != "" {
			p = filepath.Join(m.cfg.Paths.ReposRoot, p)
		}
		paths = append(paths, p)
	}
	return paths
}

// Registry returns the registry hooks are instantiated from.
func (m *Manager) Registry() *Registry { return m.registry }

// Discover runs hook discovery with the manager's registry and hook paths.
func (m *Manager) Discover() DiscoveryResult {
	return Discover(m.HookPaths(), m.registry, m.logger)
}

// NewLaunchContext resolves name and prepares a context whose arguments
// start with the executable. data extends the manager's base data.
func (m *Manager) NewLaunchContext(name string, data map[string]any) (*LaunchContext, error) {
	app, err := m.Find(name)
	if err != nil {
		return nil, errors.NewLaunchError("unknown application", err).WithApp(name)
	}
	exe, err := m.FindExecutable(app)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]any, len(m.baseData)+len(data))
	for k, v := range m.baseData {
		merged[k] = v
	}
	for k, v := range data {
		merged[k] = v
	}
	merged["executable"] = exe

	return NewLaunchContext(app, ContextOptions{
		Config:    m.cfg,
		Platform:  m.platform,
		Args:      []any{exe, app.Arguments},
		Env:       m.baseEnv,
		Data:      merged,
		Registry:  m.registry,
		HookPaths: m.HookPaths(),
		Spawner:   m.spawner,
		Logger:    m.logger,
		Bus:       m.bus,
	}), nil
}

// Launch prepares a context for name and launches it.
func (m *Manager) Launch(ctx context.Context, name string, data map[string]any) (*LaunchContext, error) {
	lc, err := m.NewLaunchContext(name, data)
	if err != nil {
		return nil, err
	}
	if _, err := lc.Launch(ctx); err != nil {
		return lc, err
	}
	return lc, nil
}

// sortVariants orders variants oldest to newest. Variant names such as
// "14-0" are compared as versions; unparsable names sort first, by name.
func sortVariants(apps []Application) {
	parse := func(v string) *version.Version {
		normalized := strings.NewReplacer("-", ".", "_", ".").Replace(v)
		ver, err := version.NewVersion(normalized)
		if err != nil {
			return nil
		}
		return ver
	}
	sort.SliceStable(apps, func(i, j int) bool {
		vi, vj := parse(apps[i].Variant), parse(apps[j].Variant)
		switch {
		case vi == nil && vj == nil:
			return apps[i].Variant < apps[j].Variant
		case vi == nil:
			return true
		case vj == nil:
			return false
		case !vi.Equal(vj):
			return vi.LessThan(vj)
		}
		return apps[i].Variant < apps[j].Variant
	})
}

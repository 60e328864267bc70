// Package session holds the explicit per-process context shared by the launch,
// creator and publish layers: the current project/asset/task, the logger, the
// event bus and the host-side storage.
package session

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/rs/xid"

	"github.com/ynput/openpype/internal/config"
	"github.com/ynput/openpype/internal/errors"
	"github.com/ynput/openpype/internal/event"
	"github.com/ynput/openpype/internal/logging"
	"github.com/ynput/openpype/internal/store"
	"github.com/ynput/openpype/internal/template"
)

// Environment variables carrying the current context between processes.
const (
	EnvProject   = "AVALON_PROJECT"
	EnvAsset     = "AVALON_ASSET"
	EnvTask      = "AVALON_TASK"
	EnvApp       = "AVALON_APP"
	EnvReposRoot = "OPENPYPE_REPOS_ROOT"
	EnvTmpdir    = "OPENPYPE_TMPDIR"
	EnvSessionID = "OPENPYPE_SESSION_ID"
)

// Options configures a ProcessContext. Empty context keys fall back to the
// AVALON_* environment variables; nil collaborators get in-memory defaults.
type Options struct {
	Project string
	Asset   string
	Task    string
	Host    string
	User    string

	Logger *logging.Logger
	Bus    *event.Bus
	Store  store.InstanceStore
	Graph  store.NodeGraph

	// Lock takes the scene lock in the store directory (Open only)
	Lock bool
}

// ProcessContext is constructed at session start and closed at session end.
type ProcessContext struct {
	ID      string
	Project string
	Asset   string
	Task    string
	Host    string
	User    string

	Config *config.Config
	Logger *logging.Logger
	Bus    *event.Bus
	Store  store.InstanceStore
	Graph  store.NodeGraph

	lock    *Lock
	closers []func() error
	closed  bool
}

// New creates a ProcessContext from opts without touching the filesystem.
func New(cfg *config.Config, opts Options) *ProcessContext {
	if cfg == nil {
		cfg = config.Default()
	}
	opts = withEnvDefaults(opts)

	pc := &ProcessContext{
		ID:      xid.New().String(),
		Project: opts.Project,
		Asset:   opts.Asset,
		Task:    opts.Task,
		Host:    opts.Host,
		User:    opts.User,
		Config:  cfg,
		Logger:  opts.Logger,
		Bus:     opts.Bus,
		Store:   opts.Store,
		Graph:   opts.Graph,
	}
	if pc.Logger == nil {
		pc.Logger = logging.NopLogger()
	}
	pc.Logger = pc.Logger.WithSession(pc.ID)
	if pc.Bus == nil {
		pc.Bus = event.NewBus(pc.Logger)
	}
	if pc.Store == nil {
		pc.Store = store.NewMemoryStore()
	}
	if pc.Graph == nil {
		pc.Graph = store.NewSceneGraph()
	}
	return pc
}

// Open creates a ProcessContext whose store and scene graph are the
// persistent ones configured in cfg.
func Open(cfg *config.Config, opts Options) (*ProcessContext, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	var closers []func() error
	if opts.Store == nil {
		s, err := store.Open(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open instance store")
		}
		opts.Store = s
		if c, ok := s.(store.Closer); ok {
			closers = append(closers, c.Close)
		}
	}
	if opts.Graph == nil {
		g, err := store.OpenSceneGraph(store.ScenePath(cfg))
		if err != nil {
			runClosers(closers)
			return nil, errors.Wrap(err, "failed to open scene graph")
		}
		opts.Graph = g
	}

	pc := New(cfg, opts)
	pc.closers = closers

	if opts.Lock {
		lock, err := AcquireLock(filepath.Dir(store.ScenePath(cfg)), pc.ID, pc.Host, pc.Logger)
		if err != nil {
			runClosers(closers)
			return nil, err
		}
		pc.lock = lock
	}

	pc.Logger.Info("process context opened",
		"project", pc.Project,
		"asset", pc.Asset,
		"task", pc.Task,
		"host", pc.Host,
		"store", cfg.Store.Backend,
	)
	return pc, nil
}

// Env returns the variables that propagate this context to a child process.
func (p *ProcessContext) Env() map[string]string {
	env := map[string]string{
		EnvSessionID: p.ID,
	}
	set := func(key, value string) {
		if value != "" {
			env[key] = value
		}
	}
	set(EnvProject, p.Project)
	set(EnvAsset, p.Asset)
	set(EnvTask, p.Task)
	set(EnvApp, p.Host)
	set(EnvReposRoot, p.Config.Paths.ReposRoot)
	return env
}

// TemplateData returns the base data used to fill naming templates.
func (p *ProcessContext) TemplateData() template.Data {
	return template.Data{
		"project": p.Project,
		"asset":   p.Asset,
		"task":    p.Task,
		"host":    p.Host,
		"app":     p.Host,
		"user":    p.User,
		"root":    p.Config.Paths.PublishRoot,
		"os":      runtime.GOOS,
	}
}

// Close releases the scene lock and closes stores opened by Open.
// Safe to call multiple times.
func (p *ProcessContext) Close() error {
	if p == nil || p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if err := p.lock.Release(); err != nil {
		errs = append(errs, err)
	}
	if err := runClosers(p.closers); err != nil {
		errs = append(errs, err)
	}
	p.Logger.Debug("process context closed")
	return errors.Join(errs...)
}

func runClosers(closers []func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func withEnvDefaults(opts Options) Options {
	fill := func(v *string, key string) {
		if *v == "" {
			*v = os.Getenv(key)
		}
	}
	fill(&opts.Project, EnvProject)
	fill(&opts.Asset, EnvAsset)
	fill(&opts.Task, EnvTask)
	fill(&opts.Host, EnvApp)
	if opts.User == "" {
		opts.User = os.Getenv("USER")
	}
	if opts.User == "" {
		opts.User = os.Getenv("USERNAME")
	}
	return opts
}

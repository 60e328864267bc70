package launch

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/rs/xid"

	"github.com/ynput/openpype/internal/config"
	"github.com/ynput/openpype/internal/errors"
	"github.com/ynput/openpype/internal/event"
	"github.com/ynput/openpype/internal/logging"
	"github.com/ynput/openpype/internal/template"
)

// ContextOptions configures a LaunchContext.
type ContextOptions struct {
	Config   *config.Config
	Platform string
	// Args is the initial command line; nested values are flattened
	Args []any
	// Env is the base environment; nil starts empty
	Env map[string]string
	// Data seeds LaunchContext.Data (project, asset, task, ...)
	Data map[string]any
	// Discovery provides the hooks; when nil, Discover runs over Registry
	// and HookPaths on the first hook pass
	Discovery *DiscoveryResult
	Registry  *Registry
	HookPaths []string
	Spawner   Spawner
	Kwargs    SpawnOptions
	Logger    *logging.Logger
	Bus       *event.Bus
}

// LaunchContext carries everything needed to spawn one application process.
// It is used from a single goroutine; hooks share Env and Data by convention.
type LaunchContext struct {
	ID       string
	App      Application
	Platform string
	Args     *LaunchArgs
	Env      map[string]string
	Data     map[string]any
	Kwargs   SpawnOptions

	// Process is set once Launch spawned the application
	Process Process
	// ExitCode is set by Wait
	ExitCode *int
	// PostlaunchErr holds the joined post-launch hook failures once they ran
	PostlaunchErr error

	// PreHooks and PostHooks hold every constructed hook, valid or not
	PreHooks        []BoundHook
	PostHooks       []BoundHook
	DiscoveryErrors []DiscoveryError

	Config *config.Config
	Logger *logging.Logger
	Bus    *event.Bus

	spawner   Spawner
	registry  *Registry
	hookPaths []string
	discovery *DiscoveryResult

	hooksBound    bool
	prelaunchRan  bool
	prelaunchErr  error
	postlaunchRan bool
}

// NewLaunchContext creates a context for app.
func NewLaunchContext(app Application, opts ContextOptions) *LaunchContext {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Platform == "" {
		opts.Platform = runtime.GOOS
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	if opts.Spawner == nil {
		opts.Spawner = ExecSpawner{}
	}

	lc := &LaunchContext{
		ID:        xid.New().String(),
		App:       app,
		Platform:  NormalizePlatform(opts.Platform),
		Args:      NewLaunchArgs(opts.Args...),
		Env:       make(map[string]string, len(opts.Env)),
		Data:      make(map[string]any, len(opts.Data)),
		Kwargs:    opts.Kwargs,
		Config:    opts.Config,
		Bus:       opts.Bus,
		spawner:   opts.Spawner,
		registry:  opts.Registry,
		hookPaths: opts.HookPaths,
		discovery: opts.Discovery,
	}
	lc.Logger = opts.Logger.WithApp(app.FullName()).With("launch_id", lc.ID)
	for k, v := range opts.Env {
		lc.Env[k] = v
	}
	for k, v := range opts.Data {
		lc.Data[k] = v
	}
	return lc
}

// TemplateData returns Data extended with the application, the platform and
// the current environment under "env".
func (lc *LaunchContext) TemplateData() template.Data {
	data := make(template.Data, len(lc.Data)+8)
	for k, v := range lc.Data {
		data[k] = v
	}
	env := make(map[string]any, len(lc.Env))
	for k, v := range lc.Env {
		env[k] = v
	}
	data["env"] = env
	data["app_name"] = lc.App.FullName()
	data["app_group"] = lc.App.Group
	data["app_variant"] = lc.App.Variant
	data["host"] = lc.App.Host
	data["platform"] = lc.Platform
	return data
}

// Format resolves tmpl against TemplateData.
func (lc *LaunchContext) Format(tmpl string) (string, error) {
	return template.Format(tmpl, lc.TemplateData())
}

func (lc *LaunchContext) formatAll(tmpls []string) ([]string, error) {
	out := make([]string, len(tmpls))
	for i, t := range tmpls {
		v, err := lc.Format(t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// DataString returns Data[key] when it is a non-empty string.
func (lc *LaunchContext) DataString(key string) string {
	s, _ := lc.Data[key].(string)
	return s
}

// DiscoverHooks constructs every pre- and post-launch hook bound to lc and
// computes validity. It runs once; later calls are no-ops.
func (lc *LaunchContext) DiscoverHooks() {
	if lc.hooksBound {
		return
	}
	lc.hooksBound = true

	result := lc.discovery
	if result == nil {
		r := Discover(lc.hookPaths, lc.registry, lc.Logger)
		result = &r
	}
	lc.DiscoveryErrors = append(lc.DiscoveryErrors, result.Errors...)
	lc.PreHooks = lc.bind(result.Pre)
	lc.PostHooks = lc.bind(result.Post)
}

func (lc *LaunchContext) bind(found []Discovered) []BoundHook {
	bound := make([]BoundHook, 0, len(found))
	for _, d := range found {
		b := BoundHook{Hook: d.Hook, Source: d.Source}
		b.Valid, b.Reason = ClassValidation(d.Hook.Filter(), lc.App, lc.Platform)
		if b.Valid && !d.Hook.Validate(lc) {
			b.Valid, b.Reason = false, "validate returned false"
		}
		if !b.Valid {
			lc.Logger.Debug("hook skipped", "hook", b.QualifiedName(), "reason", b.Reason)
		}
		bound = append(bound, b)
	}
	return bound
}

// ExecutionOrder returns the valid hooks of kind in the order they run.
func (lc *LaunchContext) ExecutionOrder(kind Kind) []BoundHook {
	lc.DiscoverHooks()
	hooks := lc.PreHooks
	if kind == KindPost {
		hooks = lc.PostHooks
	}
	var valid []BoundHook
	for _, h := range SortHooks(hooks) {
		if h.Valid {
			valid = append(valid, h)
		}
	}
	return valid
}

// RunPrelaunchHooks executes valid pre-launch hooks in order. The first error
// aborts: it is returned as a LaunchError naming the hook and matching
// errors.ErrLaunchAborted. Hooks already executed are not rolled back.
// Later calls return the first outcome.
func (lc *LaunchContext) RunPrelaunchHooks(ctx context.Context) error {
	if lc.prelaunchRan {
		return lc.prelaunchErr
	}
	lc.prelaunchRan = true
	lc.prelaunchErr = lc.runPrelaunch(ctx)
	return lc.prelaunchErr
}

func (lc *LaunchContext) runPrelaunch(ctx context.Context) error {
	for _, h := range lc.ExecutionOrder(KindPre) {
		if err := ctx.Err(); err != nil {
			return errors.NewLaunchError("launch cancelled", errors.Join(errors.ErrLaunchAborted, err)).
				WithApp(lc.App.FullName())
		}
		if err := lc.execute(ctx, h); err != nil {
			lc.Logger.Error("pre-launch hook failed, launch aborted",
				"hook", h.QualifiedName(),
				"error", err,
			)
			cause := fmt.Errorf("%w: %w: %w", errors.ErrLaunchAborted, errors.ErrHookFailed, err)
			return errors.NewLaunchError("pre-launch hook failed", cause).
				WithApp(lc.App.FullName()).
				WithHook(h.QualifiedName())
		}
	}
	return nil
}

// Launch runs the pre-launch hooks and spawns the process. The process is
// never spawned when a pre-launch hook failed.
func (lc *LaunchContext) Launch(ctx context.Context) (Process, error) {
	if lc.Process != nil {
		return lc.Process, nil
	}
	if err := lc.RunPrelaunchHooks(ctx); err != nil {
		return nil, err
	}

	argv := lc.Args.Command()
	if len(argv) == 0 {
		return nil, errors.NewLaunchError("launch arguments are empty", errors.ErrLaunchAborted).
			WithApp(lc.App.FullName())
	}

	lc.Logger.Info("launching application", "command", lc.Args.String(), "joined", lc.Args.IsJoined())
	proc, err := lc.spawner.Spawn(ctx, argv, EnvList(lc.Env), lc.Kwargs)
	if err != nil {
		lc.Logger.Error("failed to spawn application", "error", err)
		return nil, errors.NewLaunchError("failed to spawn application", err).WithApp(lc.App.FullName())
	}
	lc.Process = proc
	lc.Logger.Info("application started", "pid", proc.PID())
	lc.Bus.Publish(event.NewLaunchStartedEvent(lc.App.FullName(), proc.PID(), argv))
	return proc, nil
}

// RunPostlaunchHooks executes every valid post-launch hook once. Hooks run
// even when ctx is cancelled, since the application is already running. A
// failing hook is logged and does not stop the others; the failures are
// returned joined for reporting only and kept in PostlaunchErr.
func (lc *LaunchContext) RunPostlaunchHooks(ctx context.Context) error {
	if lc.postlaunchRan {
		return lc.PostlaunchErr
	}
	lc.postlaunchRan = true
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for _, h := range lc.ExecutionOrder(KindPost) {
		if err := lc.execute(ctx, h); err != nil {
			lc.Logger.Warn("post-launch hook failed", "hook", h.QualifiedName(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", h.QualifiedName(), err))
		}
	}
	lc.PostlaunchErr = errors.Join(errs...)
	if lc.PostlaunchErr != nil {
		lc.Logger.Warn("post-launch hooks finished with failures", "failed", len(errs))
	}
	return lc.PostlaunchErr
}

// Wait blocks until the process exits, then runs the post-launch hooks, also
// when waiting failed. Post-launch failures are kept in PostlaunchErr, not
// returned.
func (lc *LaunchContext) Wait(ctx context.Context) (int, error) {
	if lc.Process == nil {
		return -1, errors.NewLaunchError("application is not running", nil).WithApp(lc.App.FullName())
	}
	code, err := lc.Process.Wait()
	if err != nil {
		lc.Logger.Error("failed to wait for application", "pid", lc.Process.PID(), "error", err)
		_ = lc.RunPostlaunchHooks(ctx)
		return code, fmt.Errorf("failed to wait for application: %w", err)
	}
	lc.ExitCode = &code
	lc.Logger.Info("application exited", "pid", lc.Process.PID(), "exit_code", code)
	lc.Bus.Publish(event.NewLaunchExitedEvent(lc.App.FullName(), lc.Process.PID(), code))

	_ = lc.RunPostlaunchHooks(ctx)
	return code, nil
}

// execute runs one hook, turning panics into errors and publishing the
// outcome.
func (lc *LaunchContext) execute(ctx context.Context, h BoundHook) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			lc.Logger.Error("hook panicked", "hook", h.QualifiedName(), "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("hook panicked: %v", r)
		}
		elapsed := time.Since(start)
		lc.Bus.Publish(event.NewHookExecutedEvent(lc.App.FullName(), h.QualifiedName(), string(h.Hook.Kind()), elapsed, err))
		if err == nil {
			lc.Logger.Debug("hook executed", "hook", h.QualifiedName(), "duration", elapsed)
		}
	}()
	return h.Hook.Execute(ctx, lc)
}

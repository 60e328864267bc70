package publish

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/xid"

	"github.com/ynput/openpype/internal/errors"
	"github.com/ynput/openpype/internal/event"
	"github.com/ynput/openpype/internal/logging"
)

// RunnerOption configures a Runner.
type RunnerOption func(*runnerConfig)

type runnerConfig struct {
	logger  *logging.Logger
	bus     *event.Bus
	host    string
	targets []string
}

// WithLogger sets the logger used for plugin output.
func WithLogger(l *logging.Logger) RunnerOption {
	return func(c *runnerConfig) { c.logger = l }
}

// WithBus publishes a PluginProcessedEvent per plugin call and a
// PublishFinishedEvent per run.
func WithBus(b *event.Bus) RunnerOption {
	return func(c *runnerConfig) { c.bus = b }
}

// WithHost restricts plugins to those accepting host. Defaults to the host
// of the context's session.
func WithHost(host string) RunnerOption {
	return func(c *runnerConfig) { c.host = host }
}

// WithTargets restricts plugins with a target filter to these targets.
func WithTargets(targets ...string) RunnerOption {
	return func(c *runnerConfig) { c.targets = append(c.targets, targets...) }
}

// Runner executes a sorted set of plugins over a publish Context.
type Runner struct {
	plugins []Plugin
	cfg     runnerConfig
}

// NewRunner sorts plugins and returns a Runner for them.
func NewRunner(plugins []Plugin, opts ...RunnerOption) (*Runner, error) {
	cfg := runnerConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}

	sorted, err := Sort(plugins, cfg.logger)
	if err != nil {
		return nil, err
	}
	return &Runner{plugins: sorted, cfg: cfg}, nil
}

// Plugins returns the plugins in execution order.
func (r *Runner) Plugins() []Plugin {
	return append([]Plugin(nil), r.plugins...)
}

// Report summarizes a publish run.
type Report struct {
	RunID   string
	Results []Result
	// Skipped names the plugins that never ran because the run stopped
	Skipped []string
	// FailedInstances names the instances rejected by validators
	FailedInstances []string
	// Stopped is the error that ended the run early
	Stopped  error
	Duration time.Duration
}

// Success reports whether the run completed and every plugin call succeeded.
func (r *Report) Success() bool {
	if r.Stopped != nil {
		return false
	}
	for _, res := range r.Results {
		if !res.Success {
			return false
		}
	}
	return true
}

// Failures returns the failed plugin calls.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Success {
			out = append(out, res)
		}
	}
	return out
}

// Err returns nil for a successful run and otherwise an error matching
// errors.ErrPublishFailed that joins every failure.
func (r *Report) Err() error {
	if r.Success() {
		return nil
	}
	errs := []error{errors.ErrPublishFailed}
	for _, res := range r.Failures() {
		errs = append(errs, res.Error)
	}
	if r.Stopped != nil && len(r.Failures()) == 0 {
		errs = append(errs, r.Stopped)
	}
	return errors.Join(errs...)
}

// Run walks the plugins over pctx. Context plugins run once; instance
// plugins run once per active, not yet failed instance with a matching
// family. Collector, extractor and integrator failures and a failing
// context validator stop the run; instance validator failures only fail
// their instance. Cancelling ctx stops the run before the next plugin.
func (r *Runner) Run(ctx context.Context, pctx *Context) *Report {
	runID := xid.New().String()
	pctx.RunID = runID
	logger := r.cfg.logger.With("run_id", runID)

	host := r.cfg.host
	if host == "" && pctx.Session != nil {
		host = pctx.Session.Host
	}

	report := &Report{RunID: runID}
	start := time.Now()
	contextInvalid := false

	logger.Info("publish started", "plugins", len(r.plugins), "host", host)
	for _, p := range r.plugins {
		if report.Stopped == nil {
			if err := ctx.Err(); err != nil {
				report.Stopped = err
			} else if contextInvalid && p.Stage() > StageValidate {
				report.Stopped = errors.Wrap(errors.ErrValidationFailed, "context validation failed")
			}
		}
		if report.Stopped != nil {
			report.Skipped = append(report.Skipped, p.Name())
			continue
		}
		if ok, reason := r.applies(p, host); !ok {
			logger.Debug("plugin skipped", "plugin", p.Name(), "reason", reason)
			continue
		}

		switch plugin := p.(type) {
		case ContextPlugin:
			res := r.process(pctx, p, nil, func() error { return plugin.ProcessContext(ctx, pctx) })
			if !res.Success {
				if p.Stage() == StageValidate {
					contextInvalid = true
				} else {
					report.Stopped = res.Error
				}
			}

		case InstancePlugin:
			for _, inst := range pctx.Instances() {
				if !inst.Active || inst.Failed() || !inst.PluginEnabled(p.Name()) ||
					!matchesFamilies(p.Families(), inst.AllFamilies()) {
					continue
				}
				res := r.process(pctx, p, inst, func() error { return plugin.ProcessInstance(ctx, inst) })
				if res.Success {
					continue
				}
				if p.Stage() == StageValidate {
					inst.fail(res.Error)
					report.FailedInstances = append(report.FailedInstances, inst.Name)
					continue
				}
				report.Stopped = res.Error
				break
			}

		default:
			logger.Warn("plugin processes neither context nor instances", "plugin", p.Name())
		}
	}

	report.Results = pctx.Results()
	report.Duration = time.Since(start)
	failures := len(report.Failures())
	r.cfg.bus.Publish(event.NewPublishFinishedEvent(runID, report.Success(), len(report.Results), failures))

	if report.Success() {
		logger.Info("publish finished", "results", len(report.Results), "duration", report.Duration)
	} else {
		logger.Error("publish failed",
			"failures", failures,
			"failed_instances", report.FailedInstances,
			"skipped", len(report.Skipped),
			"error", report.Err(),
		)
	}
	return report
}

// applies checks the plugin's static filters against the run.
func (r *Runner) applies(p Plugin, host string) (bool, string) {
	if !p.Active() {
		return false, "plugin is disabled"
	}
	if !matchesAny(p.Hosts(), host) {
		return false, fmt.Sprintf("host %q not in %v", host, p.Hosts())
	}
	if len(p.Targets()) > 0 && !matchesAny(p.Targets(), r.cfg.targets...) {
		return false, fmt.Sprintf("targets %v not in %v", r.cfg.targets, p.Targets())
	}
	return true, ""
}

// process runs one plugin call, turning panics into errors, and records
// the result on pctx.
func (r *Runner) process(pctx *Context, p Plugin, inst *Instance, fn func() error) Result {
	logger := r.cfg.logger.WithPlugin(p.Name())
	instName := ""
	if inst != nil {
		instName = inst.Name
		logger = logger.WithInstance(inst.ID())
	}

	start := time.Now()
	err := safeCall(logger, fn)
	elapsed := time.Since(start)

	if err != nil {
		cause := err
		if p.Stage() == StageValidate {
			cause = fmt.Errorf("%w: %w", errors.ErrValidationFailed, err)
		}
		perr := errors.NewPluginError(p.Name(), cause).WithStage(p.Stage().String())
		if inst != nil {
			perr = perr.WithInstance(instName)
		}
		err = perr
		if p.Stage() == StageValidate {
			logger.Warn("validation failed", "stage", p.Stage().String(), "error", cause)
		} else {
			logger.Error("plugin failed", "stage", p.Stage().String(), "error", cause)
		}
	} else {
		logger.Debug("plugin processed", "stage", p.Stage().String(), "duration", elapsed)
	}

	res := Result{
		Plugin:   p.Name(),
		Stage:    p.Stage(),
		Instance: instName,
		Success:  err == nil,
		Error:    err,
		Duration: elapsed,
	}
	pctx.record(res)
	r.cfg.bus.Publish(event.NewPluginProcessedEvent(pctx.RunID, p.Name(), p.Stage().String(), instName, elapsed, err))
	return res
}

func safeCall(logger *logging.Logger, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("plugin panicked", "panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("plugin panicked: %v", rec)
		}
	}()
	return fn()
}

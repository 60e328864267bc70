package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/ynput/openpype/internal/config"
	"github.com/ynput/openpype/internal/event"
	"github.com/ynput/openpype/internal/logging"
	"github.com/ynput/openpype/internal/metrics"
	"github.com/ynput/openpype/internal/session"
)

// cliRuntime bundles what every command needs: the loaded configuration, a
// logger, the event bus and a metrics recorder listening on it.
type cliRuntime struct {
	cfg      *config.Config
	logger   *logging.Logger
	bus      *event.Bus
	recorder *metrics.Recorder
}

// newRuntime loads the configuration and sets up logging. The logger is
// closed at process exit.
func newRuntime() (*cliRuntime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	atexit.Register(func() { _ = logger.Close() })

	bus := event.NewBus(logger)
	recorder := metrics.NewRecorder()
	recorder.Attach(bus)

	return &cliRuntime{cfg: cfg, logger: logger, bus: bus, recorder: recorder}, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NewWriterLogger(os.Stderr, logging.LevelWarn), nil
	}
	dir := cfg.Logging.Dir
	if dir == "" {
		dir = filepath.Join(config.ConfigDir(), "logs")
	}
	return logging.NewLogger(dir, cfg.Logging.Level)
}

// writeMetrics writes the recorded metrics in textfile format. An empty
// path disables it.
func (rt *cliRuntime) writeMetrics(path string) {
	if err := rt.recorder.WriteTextfile(path); err != nil {
		rt.logger.Warn("failed to write metrics", "path", path, "error", err)
	}
}

// sessionOptions reads the context flags shared by every command.
func (rt *cliRuntime) sessionOptions(cmd *cobra.Command) session.Options {
	flags := cmd.Flags()
	project, _ := flags.GetString("project")
	asset, _ := flags.GetString("asset")
	task, _ := flags.GetString("task")
	opts := session.Options{
		Project: project,
		Asset:   asset,
		Task:    task,
		Logger:  rt.logger,
		Bus:     rt.bus,
	}
	if f := flags.Lookup("host"); f != nil {
		opts.Host = f.Value.String()
	}
	if f := flags.Lookup("user"); f != nil {
		opts.User = f.Value.String()
	}
	return opts
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

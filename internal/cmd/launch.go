package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ynput/openpype/internal/errors"
	"github.com/ynput/openpype/internal/launch"
	"github.com/ynput/openpype/internal/session"
)

var launchCmd = &cobra.Command{
	Use:   "launch <app>",
	Short: "Launch an application through the launch hooks",
	Long: `Launch an application by "group/variant" ("maya/2024") or by group
("maya", newest variant).

Pre-launch hooks run in order before the process is spawned; the first
failing hook aborts the launch. Without --wait the post-launch hooks run
right after the process started. With --wait the command waits for the
application to exit, runs the post-launch hooks and exits with the
application's exit code.`,
	Args: cobra.ExactArgs(1),
	RunE: runLaunch,
}

func init() {
	rootCmd.AddCommand(launchCmd)
	launchCmd.Flags().Bool("wait", false, "wait for the application to exit and run post-launch hooks")
	launchCmd.Flags().String("metrics-file", "", "write prometheus metrics to this file (default: publish.metrics_file)")
}

func runLaunch(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	wait, _ := cmd.Flags().GetBool("wait")
	metricsFile, _ := cmd.Flags().GetString("metrics-file")
	if metricsFile == "" {
		metricsFile = rt.cfg.Publish.MetricsFile
	}
	defer rt.writeMetrics(metricsFile)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	// Resolves the context keys from flags, falling back to AVALON_*
	pc := session.New(rt.cfg, rt.sessionOptions(cmd))
	m := launch.NewManager(rt.cfg,
		launch.WithLogger(pc.Logger),
		launch.WithBus(rt.bus),
		launch.WithData(map[string]any{
			"project": pc.Project,
			"asset":   pc.Asset,
			"task":    pc.Task,
		}),
	)

	out := cmd.OutOrStdout()
	lc, err := m.Launch(ctx, args[0], nil)
	if err != nil {
		var launchErr *errors.LaunchError
		if errors.As(err, &launchErr) && launchErr.Hook != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s pre-launch hook %s failed\n", styled(out, errorStyle, "✗"), launchErr.Hook)
		}
		return err
	}
	fmt.Fprintf(out, "%s launched %s (pid %d)\n", styled(out, successStyle, "✓"), lc.App.FullName(), lc.Process.PID())

	if !wait {
		_ = lc.RunPostlaunchHooks(ctx)
		reportPostlaunch(cmd, lc)
		return nil
	}
	code, err := lc.Wait(ctx)
	reportPostlaunch(cmd, lc)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s exited with code %d\n", lc.App.FullName(), code)
	if code != 0 {
		return &ExitError{Code: code, Err: fmt.Errorf("%s exited with code %d", lc.App.FullName(), code)}
	}
	return nil
}

func reportPostlaunch(cmd *cobra.Command, lc *launch.LaunchContext) {
	if lc.PostlaunchErr == nil {
		return
	}
	w := cmd.ErrOrStderr()
	fmt.Fprintf(w, "%s post-launch hooks failed: %v\n", styled(w, errorStyle, "!"), lc.PostlaunchErr)
}

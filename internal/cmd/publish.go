package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ynput/openpype/internal/errors"
	"github.com/ynput/openpype/internal/publish"
)

var publishCmd = &cobra.Command{
	Use:     "publish",
	Aliases: []string{"remotepublish"},
	Short:   "Publish the instances of the current scene",
	Long: `Run the publish plugins over the instances of the current scene:
collect, validate, extract, then integrate.

A validator failure rejects only its instance; a failure in any other
stage stops the run. The workfile version is only incremented when every
plugin succeeded. The command exits non-zero when the publish failed.`,
	Args: cobra.NoArgs,
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().StringSlice("targets", nil, "plugin targets (default: publish.targets)")
	publishCmd.Flags().String("host", "", "host name used to filter plugins (default: $AVALON_APP)")
	publishCmd.Flags().String("user", "", "publishing user (default: $USER)")
	publishCmd.Flags().String("workfile", "", "current workfile path")
	publishCmd.Flags().String("metrics-file", "", "write prometheus metrics to this file (default: publish.metrics_file)")
}

func runPublish(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	targets, _ := flags.GetStringSlice("targets")
	if len(targets) == 0 {
		targets = rt.cfg.Publish.Targets
	}
	workfile, _ := flags.GetString("workfile")
	metricsFile, _ := flags.GetString("metrics-file")
	if metricsFile == "" {
		metricsFile = rt.cfg.Publish.MetricsFile
	}
	defer rt.writeMetrics(metricsFile)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	opts := rt.sessionOptions(cmd)
	opts.Lock = true
	pc, cc, err := createContext(ctx, cmd, rt, opts)
	if err != nil {
		return err
	}
	defer pc.Close()

	runner, err := publish.NewRunner(publish.DefaultPlugins(workfile, rt.cfg.Publish.CopyRetries),
		publish.WithLogger(pc.Logger),
		publish.WithBus(rt.bus),
		publish.WithTargets(targets...),
	)
	if err != nil {
		return err
	}

	pctx := publish.NewContext(pc, cc)
	report := runner.Run(ctx, pctx)
	printReport(cmd.OutOrStdout(), report)
	if !report.Success() {
		return &ExitError{Code: 1, Err: errors.Wrapf(report.Err(), "publish %s", report.RunID)}
	}
	return nil
}

func printReport(out io.Writer, report *publish.Report) {
	rows := [][]string{{"STAGE", "PLUGIN", "INSTANCE", "RESULT", "TIME"}}
	for _, r := range report.Results {
		result := styled(out, successStyle, "ok")
		if !r.Success {
			result = styled(out, errorStyle, "failed: "+r.Error.Error())
		}
		rows = append(rows, []string{r.Stage.String(), r.Plugin, r.Instance, result, r.Duration.Round(time.Microsecond).String()})
	}
	table(out, rows)
	fmt.Fprintln(out)

	for _, name := range report.Skipped {
		fmt.Fprintf(out, "%s %s\n", styled(out, mutedStyle, "skipped"), name)
	}
	if report.Success() {
		fmt.Fprintf(out, "%s publish %s finished in %s\n", styled(out, successStyle, "✓"), report.RunID, report.Duration.Round(time.Millisecond))
		return
	}
	fmt.Fprintf(out, "%s publish %s failed\n", styled(out, errorStyle, "✗"), report.RunID)
}

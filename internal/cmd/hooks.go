package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ynput/openpype/internal/launch"
)

var hooksCmd = &cobra.Command{
	Use:   "hooks <app>",
	Short: "Show the launch hooks an application would run",
	Long: `Discover launch hooks for an application and show them in execution
order, with their source, order and whether their filters accept the
application. Manifests that failed to load are listed as warnings.

With --watch the listing is refreshed whenever a manifest under the hook
paths changes.`,
	Args: cobra.ExactArgs(1),
	RunE: runHooks,
}

func init() {
	rootCmd.AddCommand(hooksCmd)
	hooksCmd.Flags().Bool("watch", false, "re-run discovery when hook manifests change")
}

func runHooks(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	watch, _ := cmd.Flags().GetBool("watch")

	m := launch.NewManager(rt.cfg, launch.WithLogger(rt.logger))
	app, err := m.Find(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printHooks(out, rt, app, m.Discover())
	if !watch {
		return nil
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	w, err := launch.NewWatcher(m.HookPaths(), m.Registry(), rt.logger, func(result launch.DiscoveryResult) {
		fmt.Fprintln(out)
		printHooks(out, rt, app, result)
	})
	if err != nil {
		return fmt.Errorf("failed to watch hook paths: %w", err)
	}
	fmt.Fprintln(out, styled(out, mutedStyle, "Watching hook paths, press Ctrl+C to stop."))
	return w.Run(ctx)
}

func printHooks(out io.Writer, rt *cliRuntime, app launch.Application, result launch.DiscoveryResult) {
	lc := launch.NewLaunchContext(app, launch.ContextOptions{
		Config:    rt.cfg,
		Discovery: &result,
		Logger:    rt.logger,
	})
	lc.DiscoverHooks()

	fmt.Fprintf(out, "%s (%s)\n\n", styled(out, headerStyle, app.Label), app.FullName())
	groups := []struct {
		kind  launch.Kind
		hooks []launch.BoundHook
	}{
		{launch.KindPre, lc.PreHooks},
		{launch.KindPost, lc.PostHooks},
	}
	for _, g := range groups {
		// Invalid hooks are listed too but get no position
		rows := [][]string{{"#", "HOOK", "ORDER", "VALID", "REASON"}}
		pos := 0
		for _, h := range launch.SortHooks(g.hooks) {
			n := "-"
			if h.Valid {
				pos++
				n = fmt.Sprint(pos)
			}
			rows = append(rows, []string{n, h.QualifiedName(), h.OrderString(), yesNo(out, h.Valid), h.Reason})
		}
		fmt.Fprintf(out, "%s-launch hooks:\n", g.kind)
		if len(rows) == 1 {
			fmt.Fprintln(out, styled(out, mutedStyle, "  none"))
		} else {
			table(out, rows)
		}
		fmt.Fprintln(out)
	}

	for _, e := range result.Errors {
		fmt.Fprintf(out, "%s %s\n", styled(out, errorStyle, "warning:"), e.Error())
	}
}

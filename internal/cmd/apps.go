package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ynput/openpype/internal/launch"
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List configured applications",
	Long: `List every configured application variant for the current platform,
together with its host integration and whether an executable was found.`,
	Args: cobra.NoArgs,
	RunE: runApps,
}

func init() {
	rootCmd.AddCommand(appsCmd)
}

func runApps(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	m := launch.NewManager(rt.cfg, launch.WithLogger(rt.logger))

	out := cmd.OutOrStdout()
	rows := [][]string{{"NAME", "LABEL", "HOST", "EXECUTABLE"}}
	for _, app := range m.Applications() {
		exe, err := m.FindExecutable(app)
		if err != nil {
			exe = styled(out, mutedStyle, "not found")
		}
		rows = append(rows, []string{app.FullName(), app.Label, app.Host, exe})
	}
	if len(rows) == 1 {
		fmt.Fprintln(out, "No applications configured.")
		return nil
	}
	table(out, rows)
	return nil
}

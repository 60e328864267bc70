package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ynput/openpype/internal/bridge"
	"github.com/ynput/openpype/internal/mainthread"
	"github.com/ynput/openpype/internal/session"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Serve the instance store to a host over TCP",
	Long: `Run the host bridge: hosts without an embedded interpreter connect over
TCP and read or write instances with newline-delimited JSON requests.
Store operations are executed one at a time on the command's main loop.`,
	Args: cobra.NoArgs,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	bridgeCmd.Flags().String("address", "", "listen address (default: bridge.address)")
}

func runBridge(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	address, _ := cmd.Flags().GetString("address")
	if address == "" {
		address = rt.cfg.Bridge.Address
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	opts := rt.sessionOptions(cmd)
	opts.Lock = true
	pc, err := session.Open(rt.cfg, opts)
	if err != nil {
		return err
	}
	defer pc.Close()

	queue := mainthread.New(pc.Logger)
	srv := bridge.NewServer(pc.Store, queue, bridge.WithLogger(pc.Logger))
	if err := srv.Start(ctx, address); err != nil {
		return err
	}
	defer srv.Stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s bridge listening on %s\n", styled(out, successStyle, "✓"), srv.Addr())

	// This goroutine owns the store from here on
	err = queue.Run(ctx, rt.cfg.Bridge.PollInterval())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

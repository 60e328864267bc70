package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/ynput/openpype/internal/session"
)

var sceneCmd = &cobra.Command{
	Use:   "scene",
	Short: "Inspect the scene graph creators work on",
}

var sceneListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scene nodes and the selection",
	Args:  cobra.NoArgs,
	RunE:  runSceneList,
}

var sceneAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a node to the scene",
	Args:  cobra.ExactArgs(1),
	RunE:  runSceneAdd,
}

func init() {
	rootCmd.AddCommand(sceneCmd)
	sceneCmd.AddCommand(sceneListCmd)
	sceneCmd.AddCommand(sceneAddCmd)
	sceneAddCmd.Flags().String("type", "transform", "node type")
}

func runSceneList(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	pc, err := session.Open(rt.cfg, rt.sessionOptions(cmd))
	if err != nil {
		return err
	}
	defer pc.Close()

	ctx := cmd.Context()
	nodes, err := pc.Graph.Nodes(ctx)
	if err != nil {
		return err
	}
	selection, err := pc.Graph.Selection(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(nodes) == 0 {
		fmt.Fprintln(out, "The scene is empty.")
		return nil
	}
	rows := [][]string{{"NODE", "TYPE", "SELECTED"}}
	for _, n := range nodes {
		selected := ""
		if slices.Contains(selection, n.ID) {
			selected = "*"
		}
		rows = append(rows, []string{n.ID, n.Type, selected})
	}
	table(out, rows)
	return nil
}

func runSceneAdd(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	nodeType, _ := cmd.Flags().GetString("type")

	pc, err := session.Open(rt.cfg, rt.sessionOptions(cmd))
	if err != nil {
		return err
	}
	defer pc.Close()

	id, err := pc.Graph.CreateNode(cmd.Context(), args[0], nodeType, nil)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

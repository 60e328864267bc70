package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ynput/openpype/internal/creator"
	"github.com/ynput/openpype/internal/errors"
	"github.com/ynput/openpype/internal/session"
)

var instancesCmd = &cobra.Command{
	Use:     "instances",
	Aliases: []string{"inst"},
	Short:   "Manage the instances of the current scene",
	Long: `Commands for listing, creating and removing the instances stored in
the configured instance store (store.backend).`,
}

var instancesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List instances",
	Long: `Collect every instance from the store through the registered creators
and list them. Auto creators (the workfile creator) run first, so the
workfile instance is created or refreshed for the current context.`,
	Args: cobra.NoArgs,
	RunE: runInstancesList,
}

var instancesCreateCmd = &cobra.Command{
	Use:   "create <creator> <variant>",
	Short: "Create an instance",
	Long: `Create an instance with a creator, e.g.:
  openpype instances create render Main --data frameStart=1001 --data frameEnd=1100
  openpype instances create render Main --pre renderlayer=beauty --pre ipr=true
  openpype instances create review Main --select camMain

Values are parsed as YAML scalars, so numbers and booleans keep their type.`,
	Args: cobra.ExactArgs(2),
	RunE: runInstancesCreate,
}

var instancesRemoveCmd = &cobra.Command{
	Use:   "remove <id-or-subset>...",
	Short: "Remove instances and their helper nodes",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInstancesRemove,
}

var instancesToggleCmd = &cobra.Command{
	Use:   "toggle <id-or-subset>...",
	Short: "Enable or disable instances for publishing",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInstancesToggle,
}

func init() {
	rootCmd.AddCommand(instancesCmd)
	instancesCmd.AddCommand(instancesListCmd)
	instancesCmd.AddCommand(instancesCreateCmd)
	instancesCmd.AddCommand(instancesRemoveCmd)
	instancesCmd.AddCommand(instancesToggleCmd)

	instancesCmd.PersistentFlags().String("workfile", "", "current workfile path used by the workfile creator")
	instancesCreateCmd.Flags().StringArray("data", nil, "instance data as key=value (repeatable)")
	instancesCreateCmd.Flags().StringArray("pre", nil, "pre-create option as key=value (repeatable)")
	instancesCreateCmd.Flags().StringSlice("select", nil, "scene nodes to select before creating")
	instancesToggleCmd.Flags().Bool("active", true, "publish the instances")
}

// createContext opens the session and collects its instances. The caller
// must close the returned session.
func createContext(ctx context.Context, cmd *cobra.Command, rt *cliRuntime, opts session.Options) (*session.ProcessContext, *creator.CreateContext, error) {
	pc, err := session.Open(rt.cfg, opts)
	if err != nil {
		return nil, nil, err
	}
	workfile, _ := cmd.Flags().GetString("workfile")

	cc := creator.NewCreateContext(pc)
	if err := creator.RegisterBuiltins(cc, workfile); err != nil {
		_ = pc.Close()
		return nil, nil, err
	}
	if err := cc.Reset(ctx); err != nil {
		// Partial collection still lists what could be read
		rt.logger.Warn("create context reset had errors", "error", err)
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", styled(cmd.ErrOrStderr(), errorStyle, "warning:"), err)
	}
	return pc, cc, nil
}

func runInstancesList(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	pc, cc, err := createContext(ctx, cmd, rt, rt.sessionOptions(cmd))
	if err != nil {
		return err
	}
	defer pc.Close()

	out := cmd.OutOrStdout()
	instances := cc.Instances()
	if len(instances) == 0 {
		fmt.Fprintln(out, "No instances.")
		return nil
	}
	rows := [][]string{{"ID", "SUBSET", "FAMILY", "ASSET", "TASK", "ACTIVE", "CREATOR"}}
	for _, inst := range instances {
		rows = append(rows, []string{shortID(inst.ID()), inst.SubsetName, inst.Family, inst.Asset, inst.Task, yesNo(out, inst.Active), inst.CreatorIdentifier})
	}
	table(out, rows)
	return nil
}

func runInstancesCreate(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	rawData, _ := cmd.Flags().GetStringArray("data")
	rawPre, _ := cmd.Flags().GetStringArray("pre")
	selection, _ := cmd.Flags().GetStringSlice("select")

	data, err := parseAssignments(rawData)
	if err != nil {
		return err
	}
	pre, err := parseAssignments(rawPre)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	pc, cc, err := createContext(ctx, cmd, rt, rt.sessionOptions(cmd))
	if err != nil {
		return err
	}
	defer pc.Close()

	if len(selection) > 0 {
		sel, ok := pc.Graph.(interface{ Select(ids ...string) error })
		if !ok {
			return errors.Wrap(errors.ErrInvalidInput, "the scene graph does not support selection")
		}
		if err := sel.Select(selection...); err != nil {
			return err
		}
	}

	inst, err := cc.Create(ctx, args[0], args[1], data, pre)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s created %s (%s) %s\n", styled(out, successStyle, "✓"), inst.SubsetName, inst.Family, styled(out, mutedStyle, inst.ID()))
	return nil
}

func runInstancesRemove(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	pc, cc, err := createContext(ctx, cmd, rt, rt.sessionOptions(cmd))
	if err != nil {
		return err
	}
	defer pc.Close()

	ids, err := resolveInstances(cc, args)
	if err != nil {
		return err
	}
	if err := cc.Remove(ctx, ids...); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s removed %d instance(s)\n", styled(out, successStyle, "✓"), len(ids))
	return nil
}

func runInstancesToggle(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	active, _ := cmd.Flags().GetBool("active")

	ctx := cmd.Context()
	pc, cc, err := createContext(ctx, cmd, rt, rt.sessionOptions(cmd))
	if err != nil {
		return err
	}
	defer pc.Close()

	ids, err := resolveInstances(cc, args)
	if err != nil {
		return err
	}
	for _, id := range ids {
		inst, _ := cc.Instance(id)
		inst.Active = active
	}
	return cc.Save(ctx)
}

// resolveInstances maps instance ids, id prefixes or subset names to ids.
func resolveInstances(cc *creator.CreateContext, refs []string) ([]string, error) {
	var ids []string
	for _, ref := range refs {
		var matches []string
		for _, inst := range cc.Instances() {
			if inst.ID() == ref || inst.SubsetName == ref || strings.HasPrefix(inst.ID(), ref) {
				matches = append(matches, inst.ID())
			}
		}
		switch len(matches) {
		case 0:
			return nil, errors.Wrapf(errors.ErrInstanceNotFound, "%q", ref)
		case 1:
			ids = append(ids, matches[0])
		default:
			return nil, errors.Wrapf(errors.ErrInvalidInput, "%q matches %d instances", ref, len(matches))
		}
	}
	return ids, nil
}

// parseAssignments parses key=value pairs; values are YAML scalars.
func parseAssignments(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "expected key=value, got %q", pair)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "value of %s: %v", key, err)
		}
		if value == nil {
			value = raw
		}
		out[key] = value
	}
	return out, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

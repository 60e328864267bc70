package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ynput/openpype/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Show the effective configuration: defaults, merged with the config
file and OPENPYPE_* environment variables.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	settings := viper.AllSettings()
	delete(settings, "config")
	if _, ok := settings["applications"]; !ok {
		settings["applications"] = config.DefaultApplications()
	}
	raw, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	_, err = out.Write(raw)
	return err
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path := viper.ConfigFileUsed()
	if path == "" {
		path = config.ConfigFile()
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if _, err := config.Load(); err != nil {
		fmt.Fprintf(out, "%s configuration is invalid\n", styled(out, errorStyle, "✗"))
		return err
	}
	fmt.Fprintf(out, "%s configuration is valid\n", styled(out, successStyle, "✓"))
	return nil
}

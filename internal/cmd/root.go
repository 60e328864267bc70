// Package cmd implements the openpype command line.
package cmd

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ynput/openpype/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "openpype",
	Short: "Launch DCC applications and publish their work",
	Long: `OpenPype prepares the environment of DCC applications (Maya, Nuke,
Houdini, ...) through ordered launch hooks, keeps track of what a scene
wants to publish and runs the publish plugin pipeline over it.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExitError carries a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns the process exit code for an error returned by Execute.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code != 0 {
		return exitErr.Code
	}
	return 1
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/openpype/config.yaml)")
	rootCmd.PersistentFlags().String("project", "", "project name (default: $AVALON_PROJECT)")
	rootCmd.PersistentFlags().String("asset", "", "asset name (default: $AVALON_ASSET)")
	rootCmd.PersistentFlags().String("task", "", "task name (default: $AVALON_TASK)")
	rootCmd.PersistentFlags().String("log-level", "", "override logging.level")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("OPENPYPE")
	// e.g. OPENPYPE_PUBLISH_COPY_RETRIES for publish.copy_retries
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

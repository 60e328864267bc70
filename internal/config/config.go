package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete OpenPype configuration
type Config struct {
	Applications map[string]ApplicationGroup `mapstructure:"applications"`
	Launch       LaunchConfig                `mapstructure:"launch"`
	Paths        PathsConfig                 `mapstructure:"paths"`
	Store        StoreConfig                 `mapstructure:"store"`
	Templates    TemplatesConfig             `mapstructure:"templates"`
	Publish      PublishConfig               `mapstructure:"publish"`
	Logging      LoggingConfig               `mapstructure:"logging"`
	Bridge       BridgeConfig                `mapstructure:"bridge"`
}

// ApplicationGroup describes one DCC (e.g. "maya") and its installed variants.
type ApplicationGroup struct {
	// Host is the host integration name used by hook filters (e.g. "maya").
	// Defaults to the group name when empty.
	Host string `mapstructure:"host"`
	// Label is the human-readable name shown in listings
	Label string `mapstructure:"label"`
	// Environment entries ("KEY=value") applied to every variant
	Environment []string `mapstructure:"environment"`
	// Variants maps a version string ("2024", "14-0") to its settings
	Variants map[string]ApplicationVariant `mapstructure:"variants"`
}

// ApplicationVariant is one installed version of an application.
//
// Executables and Arguments are keyed by GOOS ("linux", "darwin", "windows").
// Environment entries use "KEY=value" form because viper lowercases map keys.
type ApplicationVariant struct {
	Label       string              `mapstructure:"label"`
	Executables map[string][]string `mapstructure:"executables"`
	Arguments   map[string][]string `mapstructure:"arguments"`
	Environment []string            `mapstructure:"environment"`
}

// LaunchConfig controls the application launch hook pipeline
type LaunchConfig struct {
	// HookPaths are directories scanned for hook manifests (*.yaml, *.yml, *.toml)
	HookPaths []string `mapstructure:"hook_paths"`
	// ShellWrap enables the built-in hook that runs the command through the platform shell
	ShellWrap bool `mapstructure:"shell_wrap"`
	// StartLastWorkfile appends the newest workfile to the launch arguments
	StartLastWorkfile bool `mapstructure:"start_last_workfile"`
	// WorkfileTemplate is a file copied as the first workfile when none exists
	WorkfileTemplate string `mapstructure:"workfile_template"`
}

// PathsConfig controls filesystem locations
type PathsConfig struct {
	// ReposRoot is the root used to resolve relative hook paths (OPENPYPE_REPOS_ROOT)
	ReposRoot string `mapstructure:"repos_root"`
	// InstanceStore is the directory holding JSON instance sidecars
	InstanceStore string `mapstructure:"instance_store"`
	// StagingRoot is where extractors write per-instance staging directories
	StagingRoot string `mapstructure:"staging_root"`
	// PublishRoot is the {root} value for publish path templates
	PublishRoot string `mapstructure:"publish_root"`
	// Tmpdir is a template for the custom temp directory (OPENPYPE_TMPDIR)
	Tmpdir string `mapstructure:"tmpdir"`
	// WorkfileRoot is the directory searched for workfiles
	WorkfileRoot string `mapstructure:"workfile_root"`
}

// StoreConfig selects the instance store backend
type StoreConfig struct {
	// Backend is one of "file", "sqlite", "memory" (default: "file")
	Backend string `mapstructure:"backend"`
	// SQLitePath is the database file used by the sqlite backend
	SQLitePath string `mapstructure:"sqlite_path"`
}

// TemplatesConfig holds naming templates
type TemplatesConfig struct {
	// SubsetName is the default subset name template (default: "{family}{Variant}")
	SubsetName string `mapstructure:"subset_name"`
	// SubsetNameProfiles overrides SubsetName per family
	SubsetNameProfiles map[string]string `mapstructure:"subset_name_profiles"`
	// PublishPath is the directory template for integrated files
	PublishPath string `mapstructure:"publish_path"`
	// Workfile is the workfile file name template
	Workfile string `mapstructure:"workfile"`
}

// PublishConfig controls publish runs
type PublishConfig struct {
	// Targets filters plugins by target (default: ["local"])
	Targets []string `mapstructure:"targets"`
	// MetricsFile, when set, receives prometheus text metrics after each run
	MetricsFile string `mapstructure:"metrics_file"`
	// CopyRetries is the maximum retry count for integrator file copies
	CopyRetries int `mapstructure:"copy_retries"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	// Enabled writes logs to Dir/openpype.log; when false logs go to stderr at warn level
	Enabled bool `mapstructure:"enabled"`
	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
	// Dir is the log directory (default: <config dir>/logs)
	Dir string `mapstructure:"dir"`
}

// BridgeConfig controls the host bridge server
type BridgeConfig struct {
	// Address is the TCP listen address (default: "127.0.0.1:0")
	Address string `mapstructure:"address"`
	// PollIntervalMs is how often the main-thread queue is drained
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
}

// PollInterval returns the poll interval as a duration
func (c *BridgeConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// HostName returns the configured host, falling back to the group name.
func (g ApplicationGroup) HostName(group string) string {
	if g.Host != "" {
		return g.Host
	}
	return group
}

// SubsetTemplate returns the subset name template for a family.
func (t *TemplatesConfig) SubsetTemplate(family string) string {
	if tmpl, ok := t.SubsetNameProfiles[family]; ok && tmpl != "" {
		return tmpl
	}
	return t.SubsetName
}

// Default returns a Config with sensible default values
func Default() *Config {
	dataDir := filepath.Join(ConfigDir(), "data")
	return &Config{
		Applications: DefaultApplications(),
		Launch: LaunchConfig{
			HookPaths:         []string{},
			ShellWrap:         false,
			StartLastWorkfile: true,
		},
		Paths: PathsConfig{
			InstanceStore: filepath.Join(dataDir, "instances"),
			StagingRoot:   filepath.Join(os.TempDir(), "openpype", "staging"),
			PublishRoot:   filepath.Join(dataDir, "publish"),
			WorkfileRoot:  filepath.Join(dataDir, "work"),
		},
		Store: StoreConfig{
			Backend:    "file",
			SQLitePath: filepath.Join(dataDir, "instances.db"),
		},
		Templates: TemplatesConfig{
			SubsetName: "{family}{Variant}",
			SubsetNameProfiles: map[string]string{
				"render": "{family}{Variant}<_{renderlayer}>",
			},
			PublishPath: "{root}/{project}/{asset}/publish/{family}/{subset}/v{version:0>3}",
			Workfile:    "{asset}_{task}_v{version:0>3}.{ext}",
		},
		Publish: PublishConfig{
			Targets:     []string{"local"},
			CopyRetries: 3,
		},
		Logging: LoggingConfig{
			Enabled: false,
			Level:   "info",
		},
		Bridge: BridgeConfig{
			Address:        "127.0.0.1:0",
			PollIntervalMs: 50,
		},
	}
}

// DefaultApplications returns the built-in application definitions used
// when the config file does not declare any.
func DefaultApplications() map[string]ApplicationGroup {
	return map[string]ApplicationGroup{
		"maya": {
			Label:       "Autodesk Maya",
			Environment: []string{"MAYA_DISABLE_CLIC_IPM=Yes", "MAYA_DISABLE_CIP=Yes"},
			Variants: map[string]ApplicationVariant{
				"2024": {
					Executables: map[string][]string{
						"linux":   {"/usr/autodesk/maya2024/bin/maya"},
						"darwin":  {"/Applications/Autodesk/maya2024/Maya.app/Contents/bin/maya"},
						"windows": {`C:\Program Files\Autodesk\Maya2024\bin\maya.exe`},
					},
				},
				"2023": {
					Executables: map[string][]string{
						"linux":   {"/usr/autodesk/maya2023/bin/maya"},
						"darwin":  {"/Applications/Autodesk/maya2023/Maya.app/Contents/bin/maya"},
						"windows": {`C:\Program Files\Autodesk\Maya2023\bin\maya.exe`},
					},
				},
			},
		},
		"nuke": {
			Label: "Nuke",
			Variants: map[string]ApplicationVariant{
				"14-0": {
					Label: "14.0",
					Executables: map[string][]string{
						"linux":   {"/usr/local/Nuke14.0v5/Nuke14.0"},
						"darwin":  {"/Applications/Nuke14.0v5/Nuke14.0v5.app/Contents/MacOS/Nuke14.0"},
						"windows": {`C:\Program Files\Nuke14.0v5\Nuke14.0.exe`},
					},
				},
			},
		},
		"blender": {
			Label: "Blender",
			Variants: map[string]ApplicationVariant{
				"3-6": {
					Label: "3.6",
					Executables: map[string][]string{
						"linux":   {"/opt/blender/blender-3.6/blender", "blender"},
						"darwin":  {"/Applications/Blender.app/Contents/MacOS/Blender"},
						"windows": {`C:\Program Files\Blender Foundation\Blender 3.6\blender.exe`},
					},
					Arguments: map[string][]string{
						"linux": {"--python-use-system-env"},
					},
				},
			},
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Launch defaults
	viper.SetDefault("launch.hook_paths", defaults.Launch.HookPaths)
	viper.SetDefault("launch.shell_wrap", defaults.Launch.ShellWrap)
	viper.SetDefault("launch.start_last_workfile", defaults.Launch.StartLastWorkfile)
	viper.SetDefault("launch.workfile_template", defaults.Launch.WorkfileTemplate)

	// Paths defaults
	viper.SetDefault("paths.repos_root", defaults.Paths.ReposRoot)
	viper.SetDefault("paths.instance_store", defaults.Paths.InstanceStore)
	viper.SetDefault("paths.staging_root", defaults.Paths.StagingRoot)
	viper.SetDefault("paths.publish_root", defaults.Paths.PublishRoot)
	viper.SetDefault("paths.tmpdir", defaults.Paths.Tmpdir)
	viper.SetDefault("paths.workfile_root", defaults.Paths.WorkfileRoot)

	// Store defaults
	viper.SetDefault("store.backend", defaults.Store.Backend)
	viper.SetDefault("store.sqlite_path", defaults.Store.SQLitePath)

	// Template defaults
	viper.SetDefault("templates.subset_name", defaults.Templates.SubsetName)
	viper.SetDefault("templates.subset_name_profiles", defaults.Templates.SubsetNameProfiles)
	viper.SetDefault("templates.publish_path", defaults.Templates.PublishPath)
	viper.SetDefault("templates.workfile", defaults.Templates.Workfile)

	// Publish defaults
	viper.SetDefault("publish.targets", defaults.Publish.Targets)
	viper.SetDefault("publish.metrics_file", defaults.Publish.MetricsFile)
	viper.SetDefault("publish.copy_retries", defaults.Publish.CopyRetries)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)

	// Bridge defaults
	viper.SetDefault("bridge.address", defaults.Bridge.Address)
	viper.SetDefault("bridge.poll_interval_ms", defaults.Bridge.PollIntervalMs)

	// Well-known pipeline variables that predate the OPENPYPE_<SECTION>_ scheme
	_ = viper.BindEnv("paths.repos_root", "OPENPYPE_REPOS_ROOT")
	_ = viper.BindEnv("paths.tmpdir", "OPENPYPE_TMPDIR")
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Application definitions are structured data and are not registered as
	// viper defaults; fall back to the built-ins when none are configured.
	if len(cfg.Applications) == 0 {
		cfg.Applications = DefaultApplications()
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "openpype")
	}
	// Fall back to ~/.config/openpype
	home, err := os.UserHomeDir()
	if err != nil {
		return ".openpype"
	}
	return filepath.Join(home, ".config", "openpype")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidStoreBackends returns the list of valid store backend values
func ValidStoreBackends() []string {
	return []string{"file", "sqlite", "memory"}
}

// IsValidStoreBackend checks if the given backend is valid
func IsValidStoreBackend(backend string) bool {
	for _, valid := range ValidStoreBackends() {
		if backend == valid {
			return true
		}
	}
	return false
}

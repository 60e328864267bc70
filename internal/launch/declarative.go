package launch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ynput/openpype/internal/errors"
	"github.com/ynput/openpype/internal/workfile"
)

// Action is one step of a manifest hook. All string values are templates
// resolved against LaunchContext.TemplateData; environment values are
// available as {env.NAME}. When several fields are set they apply in the
// order they are listed here.
type Action struct {
	// RequireEnv fails the hook when any listed variable is unset or empty
	RequireEnv []string `yaml:"require_env" toml:"require_env"`
	// Unset removes variables
	Unset []string `yaml:"unset" toml:"unset"`
	// Env sets variables
	Env map[string]string `yaml:"env" toml:"env"`
	// EnvPrepend and EnvAppend extend path lists using the OS list separator
	EnvPrepend map[string]string `yaml:"env_prepend" toml:"env_prepend"`
	EnvAppend  map[string]string `yaml:"env_append" toml:"env_append"`
	// Data sets launch context data for later hooks
	Data map[string]any `yaml:"data" toml:"data"`
	// CopyTemplate copies Src to Dst unless Dst exists
	CopyTemplate *CopySpec `yaml:"copy_template" toml:"copy_template"`
	// ArgsPrepend and ArgsAppend edit the launch arguments
	ArgsPrepend []string `yaml:"args_prepend" toml:"args_prepend"`
	ArgsAppend  []string `yaml:"args_append" toml:"args_append"`
	// ShellWrap stringifies the arguments into a platform shell command
	ShellWrap bool `yaml:"shell_wrap" toml:"shell_wrap"`
	// Fail aborts with the given message
	Fail string `yaml:"fail" toml:"fail"`
}

// CopySpec is the copy_template action payload.
type CopySpec struct {
	Src string `yaml:"src" toml:"src"`
	Dst string `yaml:"dst" toml:"dst"`
}

func (a Action) validate() error {
	if len(a.RequireEnv) == 0 && len(a.Unset) == 0 && len(a.Env) == 0 &&
		len(a.EnvPrepend) == 0 && len(a.EnvAppend) == 0 && len(a.Data) == 0 &&
		a.CopyTemplate == nil && len(a.ArgsPrepend) == 0 && len(a.ArgsAppend) == 0 &&
		!a.ShellWrap && a.Fail == "" {
		return errors.Wrap(errors.ErrInvalidInput, "empty action")
	}
	if a.CopyTemplate != nil && (a.CopyTemplate.Src == "" || a.CopyTemplate.Dst == "") {
		return errors.Wrap(errors.ErrInvalidInput, "copy_template needs src and dst")
	}
	return nil
}

// ManifestHook is a hook declared in a manifest file.
type ManifestHook struct {
	BaseHook
	Actions []Action
}

// Execute applies the actions in order and stops at the first error.
func (h *ManifestHook) Execute(ctx context.Context, lc *LaunchContext) error {
	for i, a := range h.Actions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.apply(lc); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

func (a Action) apply(lc *LaunchContext) error {
	for _, key := range a.RequireEnv {
		if lc.Env[key] == "" {
			return errors.NewValidationError("required environment variable is not set").WithField(key)
		}
	}

	for _, key := range a.Unset {
		delete(lc.Env, key)
	}

	for _, key := range sortedKeys(a.Env) {
		value, err := lc.Format(a.Env[key])
		if err != nil {
			return err
		}
		lc.Env[key] = value
	}

	for _, key := range sortedKeys(a.EnvPrepend) {
		value, err := lc.Format(a.EnvPrepend[key])
		if err != nil {
			return err
		}
		lc.Env[key] = joinPathList(value, lc.Env[key])
	}

	for _, key := range sortedKeys(a.EnvAppend) {
		value, err := lc.Format(a.EnvAppend[key])
		if err != nil {
			return err
		}
		lc.Env[key] = joinPathList(lc.Env[key], value)
	}

	for key, value := range a.Data {
		lc.Data[key] = value
	}

	if a.CopyTemplate != nil {
		if err := a.copyTemplate(lc); err != nil {
			return err
		}
	}

	if len(a.ArgsPrepend) > 0 {
		args, err := lc.formatAll(a.ArgsPrepend)
		if err != nil {
			return err
		}
		if err := lc.Args.Prepend(args); err != nil {
			return err
		}
	}

	if len(a.ArgsAppend) > 0 {
		args, err := lc.formatAll(a.ArgsAppend)
		if err != nil {
			return err
		}
		if err := lc.Args.Append(args); err != nil {
			return err
		}
	}

	if a.ShellWrap && !lc.Args.IsJoined() {
		if err := lc.Args.Join(ShellPrefix(lc.Platform), lc.Platform); err != nil {
			return err
		}
	}

	if a.Fail != "" {
		msg, err := lc.Format(a.Fail)
		if err != nil {
			msg = a.Fail
		}
		return errors.New(msg)
	}
	return nil
}

func (a Action) copyTemplate(lc *LaunchContext) error {
	src, err := lc.Format(a.CopyTemplate.Src)
	if err != nil {
		return err
	}
	dst, err := lc.Format(a.CopyTemplate.Dst)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dst); err == nil {
		lc.Logger.Debug("copy_template skipped, destination exists", "dst", dst)
		return nil
	}
	return workfile.Copy(src, dst)
}

func joinPathList(first, second string) string {
	switch {
	case first == "":
		return second
	case second == "":
		return first
	}
	return first + string(os.PathListSeparator) + second
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// expandUser replaces a leading "~" with the home directory.
func expandUser(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

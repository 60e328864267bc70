package launch

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ynput/openpype/internal/errors"
	"github.com/ynput/openpype/internal/session"
	"github.com/ynput/openpype/internal/workfile"
)

// Data keys shared between the built-in hooks.
const (
	DataWorkdir          = "workdir"
	DataLastWorkfilePath = "last_workfile_path"
	DataTmpdir           = "tmpdir"
)

// EnvWorkdir is the working directory of the launched task.
const EnvWorkdir = "AVALON_WORKDIR"

// RegisterBuiltins adds the built-in hooks to r.
func RegisterBuiltins(r *Registry) {
	r.MustRegister(SourceBuiltin, func() Hook { return NewGlobalHostData() })
	r.MustRegister(SourceBuiltin, func() Hook { return NewResolveTmpdir() })
	r.MustRegister(SourceBuiltin, func() Hook { return NewCopyTemplateWorkfile() })
	r.MustRegister(SourceBuiltin, func() Hook { return NewAddLastWorkfileArg() })
	r.MustRegister(SourceBuiltin, func() Hook { return NewShellWrap() })
	r.MustRegister(SourceBuiltin, func() Hook { return NewLogProcessExit() })
}

// GlobalHostData exports the session context and the application
// environment. It runs first so every later hook sees them.
type GlobalHostData struct{ BaseHook }

func NewGlobalHostData() *GlobalHostData {
	return &GlobalHostData{BaseHook{HookName: "GlobalHostData", HookOrder: Order(-100)}}
}

func (h *GlobalHostData) Execute(ctx context.Context, lc *LaunchContext) error {
	set := func(key, value string) {
		if value != "" {
			lc.Env[key] = value
		}
	}
	set(session.EnvProject, lc.DataString("project"))
	set(session.EnvAsset, lc.DataString("asset"))
	set(session.EnvTask, lc.DataString("task"))
	set(session.EnvApp, lc.App.Host)
	set("AVALON_APP_NAME", lc.App.FullName())
	set(session.EnvReposRoot, lc.Config.Paths.ReposRoot)

	for _, kv := range lc.App.Environment {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return errors.NewValidationError("application environment entry must be KEY=value").WithValue(kv)
		}
		value, err := lc.Format(raw)
		if err != nil {
			return errors.Wrapf(err, "environment %s", key)
		}
		lc.Env[key] = value
	}

	if hasTaskContext(lc) {
		workdir, err := Workdir(lc)
		if err != nil {
			return err
		}
		lc.Data[DataWorkdir] = workdir
		lc.Env[EnvWorkdir] = workdir
	}
	return nil
}

// ResolveTmpdir resolves the custom temp directory template, creates the
// directory and exports OPENPYPE_TMPDIR.
type ResolveTmpdir struct{ BaseHook }

func NewResolveTmpdir() *ResolveTmpdir {
	return &ResolveTmpdir{BaseHook{HookName: "ResolveTmpdir", HookOrder: Order(-50)}}
}

func (h *ResolveTmpdir) Validate(lc *LaunchContext) bool {
	return lc.Config.Paths.Tmpdir != ""
}

func (h *ResolveTmpdir) Execute(ctx context.Context, lc *LaunchContext) error {
	dir, err := lc.Format(lc.Config.Paths.Tmpdir)
	if err != nil {
		return err
	}
	dir = expandUser(dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create tmpdir")
	}
	lc.Env[session.EnvTmpdir] = dir
	lc.Data[DataTmpdir] = dir
	return nil
}

// CopyTemplateWorkfile copies the configured template workfile as version 1
// when the task has no workfile yet.
type CopyTemplateWorkfile struct{ BaseHook }

func NewCopyTemplateWorkfile() *CopyTemplateWorkfile {
	return &CopyTemplateWorkfile{BaseHook{HookName: "CopyTemplateWorkfile", HookOrder: Order(0)}}
}

func (h *CopyTemplateWorkfile) Validate(lc *LaunchContext) bool {
	return lc.Config.Launch.StartLastWorkfile &&
		lc.Config.Launch.WorkfileTemplate != "" &&
		hasTaskContext(lc) &&
		len(workfile.Extensions(lc.App.Host)) > 0
}

func (h *CopyTemplateWorkfile) Execute(ctx context.Context, lc *LaunchContext) error {
	workdir, err := Workdir(lc)
	if err != nil {
		return err
	}
	data := lc.TemplateData()
	tmpl := lc.Config.Templates.Workfile

	if last, ok, err := workfile.Last(workdir, tmpl, data, workfile.Extensions(lc.App.Host)); err != nil {
		return err
	} else if ok {
		lc.Data[DataLastWorkfilePath] = last.Path
		return nil
	}

	src := expandUser(lc.Config.Launch.WorkfileTemplate)
	ext := strings.ToLower(filepath.Ext(src))
	if !contains(workfile.Extensions(lc.App.Host), ext) {
		lc.Logger.Warn("workfile template does not match host, skipped",
			"template", src,
			"host", lc.App.Host,
		)
		return nil
	}

	dst, _, err := workfile.Next(workdir, tmpl, data, ext)
	if err != nil {
		return err
	}
	if err := workfile.Copy(src, dst); err != nil {
		return err
	}
	lc.Logger.Info("workfile created from template", "template", src, "path", dst)
	lc.Data[DataLastWorkfilePath] = dst
	return nil
}

// AddLastWorkfileArg opens the newest workfile of the task.
type AddLastWorkfileArg struct{ BaseHook }

func NewAddLastWorkfileArg() *AddLastWorkfileArg {
	return &AddLastWorkfileArg{BaseHook{HookName: "AddLastWorkfileArg", HookOrder: Order(10)}}
}

func (h *AddLastWorkfileArg) Validate(lc *LaunchContext) bool {
	return lc.Config.Launch.StartLastWorkfile &&
		hasTaskContext(lc) &&
		len(workfile.Extensions(lc.App.Host)) > 0
}

func (h *AddLastWorkfileArg) Execute(ctx context.Context, lc *LaunchContext) error {
	path := lc.DataString(DataLastWorkfilePath)
	if path == "" {
		workdir, err := Workdir(lc)
		if err != nil {
			return err
		}
		last, ok, err := workfile.Last(workdir, lc.Config.Templates.Workfile, lc.TemplateData(), workfile.Extensions(lc.App.Host))
		if err != nil {
			return err
		}
		if !ok {
			lc.Logger.Info("no workfile to open", "workdir", workdir)
			return nil
		}
		path = last.Path
		lc.Data[DataLastWorkfilePath] = path
	}
	return lc.Args.Append(path)
}

// ShellWrap runs the command through the platform shell. It stringifies the
// arguments, so it runs after every hook that edits them.
type ShellWrap struct{ BaseHook }

func NewShellWrap() *ShellWrap {
	return &ShellWrap{BaseHook{HookName: "ShellWrap", HookOrder: Order(1000)}}
}

func (h *ShellWrap) Validate(lc *LaunchContext) bool {
	return lc.Config.Launch.ShellWrap
}

func (h *ShellWrap) Execute(ctx context.Context, lc *LaunchContext) error {
	if lc.Args.IsJoined() {
		return nil
	}
	return lc.Args.Join(ShellPrefix(lc.Platform), lc.Platform)
}

// LogProcessExit reports how the application ended.
type LogProcessExit struct{ BaseHook }

func NewLogProcessExit() *LogProcessExit {
	return &LogProcessExit{BaseHook{HookName: "LogProcessExit", HookKind: KindPost}}
}

func (h *LogProcessExit) Execute(ctx context.Context, lc *LaunchContext) error {
	switch {
	case lc.ExitCode == nil:
		lc.Logger.Info("application detached")
	case *lc.ExitCode != 0:
		lc.Logger.Warn("application exited with error", "exit_code", *lc.ExitCode)
	default:
		lc.Logger.Info("application exited cleanly")
	}
	return nil
}

// Workdir resolves the task work directory under the workfile root.
func Workdir(lc *LaunchContext) (string, error) {
	if dir := lc.DataString(DataWorkdir); dir != "" {
		return dir, nil
	}
	root := expandUser(lc.Config.Paths.WorkfileRoot)
	rel, err := lc.Format("{project}/{asset}/work/{task}")
	if err != nil {
		return "", err
	}
	return filepath.Join(root, filepath.FromSlash(rel)), nil
}

func hasTaskContext(lc *LaunchContext) bool {
	return lc.DataString("project") != "" && lc.DataString("asset") != "" && lc.DataString("task") != ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

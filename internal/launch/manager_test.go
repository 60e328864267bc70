package launch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ynput/openpype/internal/config"
	"github.com/ynput/openpype/internal/errors"
	"github.com/ynput/openpype/internal/session"
)

func fakeLookPath(found ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		for _, f := range found {
			if f == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", os.ErrNotExist
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.ReposRoot = root
	cfg.Paths.WorkfileRoot = filepath.Join(root, "work")
	cfg.Applications = map[string]config.ApplicationGroup{
		"maya": {
			Label:       "Maya",
			Environment: []string{"MAYA_SHOW={project}"},
			Variants: map[string]config.ApplicationVariant{
				"2023": {Executables: map[string][]string{"linux": {"maya2023"}}},
				"2024": {
					Executables: map[string][]string{"linux": {"maya2024"}},
					Arguments:   map[string][]string{"linux": {"-noAutoloadPlugins"}},
					Environment: []string{"MAYA_VERSION=2024"},
				},
			},
		},
		"nuke": {
			Variants: map[string]config.ApplicationVariant{
				"13-2":    {Executables: map[string][]string{"linux": {"nuke"}}},
				"14-0":    {Executables: map[string][]string{"linux": {"nuke"}}},
				"9-0":     {Executables: map[string][]string{"linux": {"nuke"}}},
				"nightly": {Executables: map[string][]string{"linux": {"nuke"}}},
			},
		},
		"houdini": {
			Variants: map[string]config.ApplicationVariant{
				"19-5": {Executables: map[string][]string{"linux": {"/nonexistent/houdini", "houdini"}}},
			},
		},
	}
	return cfg
}

func TestManager_Find(t *testing.T) {
	m := NewManager(testConfig(t), WithPlatform("linux"))

	tests := []struct {
		name    string
		query   string
		want    string
		wantErr bool
	}{
		{"exact", "maya/2023", "maya/2023", false},
		{"newest by version", "maya", "maya/2024", false},
		{"dashed versions compare numerically", "nuke", "nuke/14-0", false},
		{"trailing slash", "nuke/", "nuke/14-0", false},
		{"unknown", "katana", "", true},
		{"unknown variant", "maya/1999", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, err := m.Find(tt.query)
			if tt.wantErr {
				if !errors.Is(err, errors.ErrApplicationNotFound) {
					t.Errorf("Find(%q) error = %v, want ErrApplicationNotFound", tt.query, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Find(%q) error = %v", tt.query, err)
			}
			if app.FullName() != tt.want {
				t.Errorf("Find(%q) = %s, want %s", tt.query, app.FullName(), tt.want)
			}
		})
	}

	if got := len(m.Applications()); got != 7 {
		t.Errorf("Applications() = %d, want 7", got)
	}
}

func TestManager_FindExecutable(t *testing.T) {
	m := NewManager(testConfig(t), WithPlatform("linux"), WithLookPath(fakeLookPath("houdini")))

	app, _ := m.Find("houdini")
	exe, err := m.FindExecutable(app)
	if err != nil || exe != "/usr/bin/houdini" {
		t.Errorf("FindExecutable() = %q, %v", exe, err)
	}

	app, _ = m.Find("maya")
	_, err = m.FindExecutable(app)
	var notFound *errors.ExecutableNotFoundError
	if !errors.As(err, &notFound) || notFound.App != "maya/2024" {
		t.Fatalf("FindExecutable() error = %v, want ExecutableNotFoundError", err)
	}
	if !errors.Is(err, errors.ErrExecutableNotFound) {
		t.Error("error should match ErrExecutableNotFound")
	}

	spawner := &fakeSpawner{}
	m = NewManager(testConfig(t), WithPlatform("linux"), WithLookPath(fakeLookPath()), WithSpawner(spawner))
	if _, err := m.Launch(context.Background(), "maya", nil); !errors.Is(err, errors.ErrExecutableNotFound) {
		t.Errorf("Launch() error = %v, want ErrExecutableNotFound", err)
	}
	if spawner.callCount() != 0 {
		t.Error("spawned without an executable")
	}
}

func TestManager_LaunchWithBuiltins(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.Tmpdir = filepath.Join(cfg.Paths.ReposRoot, "tmp", "{project}")

	workdir := filepath.Join(cfg.Paths.WorkfileRoot, "demo", "sh010", "work", "anim")
	if err := os.MkdirAll(workdir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"sh010_anim_v001.ma", "sh010_anim_v003.mb", "sh010_layout_v009.ma"} {
		if err := os.WriteFile(filepath.Join(workdir, name), []byte("//Maya"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	spawner := &fakeSpawner{}
	m := NewManager(cfg,
		WithPlatform("linux"),
		WithLookPath(fakeLookPath("maya2024")),
		WithSpawner(spawner),
		WithEnvironment(map[string]string{"PATH": "/usr/bin"}),
		WithData(map[string]any{"project": "demo", "asset": "sh010"}),
	)

	lc, err := m.Launch(context.Background(), "maya", map[string]any{"task": "anim"})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}

	argv := spawner.calls[0]
	want := []string{"/usr/bin/maya2024", "-noAutoloadPlugins", filepath.Join(workdir, "sh010_anim_v003.mb")}
	if strings.Join(argv, "|") != strings.Join(want, "|") {
		t.Errorf("argv = %v, want %v", argv, want)
	}

	for key, value := range map[string]string{
		session.EnvProject: "demo",
		session.EnvAsset:   "sh010",
		session.EnvTask:    "anim",
		session.EnvApp:     "maya",
		"AVALON_APP_NAME":  "maya/2024",
		"MAYA_SHOW":        "demo",
		"MAYA_VERSION":     "2024",
		EnvWorkdir:         workdir,
		session.EnvTmpdir:  filepath.Join(cfg.Paths.ReposRoot, "tmp", "demo"),
		"PATH":             "/usr/bin",
	} {
		if got := lc.Env[key]; got != value {
			t.Errorf("env %s = %q, want %q", key, got, value)
		}
	}
	if info, err := os.Stat(lc.Env[session.EnvTmpdir]); err != nil || !info.IsDir() {
		t.Errorf("tmpdir not created: %v", err)
	}
	if lc.Data["executable"] != "/usr/bin/maya2024" {
		t.Errorf("data executable = %v", lc.Data["executable"])
	}
}

func TestManager_TemplateWorkfileCopied(t *testing.T) {
	cfg := testConfig(t)
	tmpl := filepath.Join(cfg.Paths.ReposRoot, "template.ma")
	if err := os.WriteFile(tmpl, []byte("//Maya template"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg.Launch.WorkfileTemplate = tmpl

	spawner := &fakeSpawner{}
	m := NewManager(cfg,
		WithPlatform("linux"),
		WithLookPath(fakeLookPath("maya2024")),
		WithSpawner(spawner),
		WithEnvironment(map[string]string{}),
	)
	data := map[string]any{"project": "demo", "asset": "sh020", "task": "light"}
	if _, err := m.Launch(context.Background(), "maya/2024", data); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}

	first := filepath.Join(cfg.Paths.WorkfileRoot, "demo", "sh020", "work", "light", "sh020_light_v001.ma")
	content, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("template workfile not copied: %v", err)
	}
	if string(content) != "//Maya template" {
		t.Errorf("copied content = %q", content)
	}
	if argv := spawner.calls[0]; argv[len(argv)-1] != first {
		t.Errorf("last arg = %q, want %q", argv[len(argv)-1], first)
	}
}

func TestManager_ShellWrapRunsLast(t *testing.T) {
	cfg := testConfig(t)
	cfg.Launch.ShellWrap = true
	cfg.Launch.StartLastWorkfile = false
	hooks := filepath.Join(cfg.Paths.ReposRoot, "hooks")
	writeManifest(t, hooks, "late.yaml", `
hooks:
  - name: LateFlag
    order: 500
    actions:
      - args_append: ["-script", "{project} setup.mel"]
`)
	cfg.Launch.HookPaths = []string{"hooks"}

	spawner := &fakeSpawner{}
	m := NewManager(cfg,
		WithPlatform("linux"),
		WithLookPath(fakeLookPath("maya2024")),
		WithSpawner(spawner),
		WithEnvironment(map[string]string{}),
	)
	if got := m.HookPaths(); len(got) != 1 || got[0] != hooks {
		t.Errorf("HookPaths() = %v, want [%s]", got, hooks)
	}

	lc, err := m.Launch(context.Background(), "maya", map[string]any{"project": "demo"})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if !lc.Args.IsJoined() {
		t.Fatal("arguments were not shell wrapped")
	}
	want := []string{"/bin/sh", "-c", "/usr/bin/maya2024 -noAutoloadPlugins -script 'demo setup.mel'"}
	if got := spawner.calls[0]; strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("argv = %q, want %q", got, want)
	}
}

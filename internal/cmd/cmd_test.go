package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ynput/openpype/internal/errors"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

// setupTestConfig points every path the commands touch at a temp dir.
func setupTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("AVALON_PROJECT", "")
	t.Setenv("AVALON_ASSET", "")
	t.Setenv("AVALON_TASK", "")
	t.Setenv("AVALON_APP", "")

	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("logging.enabled", false)
	viper.Set("store.backend", "file")
	viper.Set("paths.instance_store", filepath.Join(dir, "instances"))
	viper.Set("paths.staging_root", filepath.Join(dir, "staging"))
	viper.Set("paths.publish_root", filepath.Join(dir, "publish"))
	viper.Set("launch.hook_paths", []string{filepath.Join(dir, "hooks")})
	return dir
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "openpype" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "openpype")
	}

	// Compare by Name(), not Use which includes args
	expectedCmds := []string{"launch", "apps", "hooks", "instances", "publish", "bridge", "config", "scene"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, expected := range expectedCmds {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}

	found, _, err := rootCmd.Find([]string{"remotepublish"})
	if err != nil || found != publishCmd {
		t.Errorf("remotepublish resolves to %v, %v; want publish", found, err)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain error", errors.New("boom"), 1},
		{"exit error", &ExitError{Code: 3, Err: errors.New("maya exited")}, 3},
		{"wrapped exit error", errors.Wrap(&ExitError{Code: 2, Err: errors.New("x")}, "launch"), 2},
		{"zero code", &ExitError{Err: errors.New("x")}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"frameStart=1001", "farm=true", "layer=beauty", "step=0.5", "empty="})
	if err != nil {
		t.Fatalf("parseAssignments() error = %v", err)
	}
	want := map[string]any{"frameStart": 1001, "farm": true, "layer": "beauty", "step": 0.5, "empty": ""}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %#v, want %#v", k, got[k], v)
		}
	}

	for _, bad := range []string{"noequals", "=value"} {
		if _, err := parseAssignments([]string{bad}); !errors.Is(err, errors.ErrInvalidInput) {
			t.Errorf("parseAssignments(%q) error = %v, want ErrInvalidInput", bad, err)
		}
	}
}

func TestApps(t *testing.T) {
	setupTestConfig(t)
	output, err := executeCommand(rootCmd, "apps")
	if err != nil {
		t.Fatalf("apps error = %v", err)
	}
	if !strings.Contains(output, "NAME") || !strings.Contains(output, "maya/") {
		t.Errorf("apps output missing the default applications:\n%s", output)
	}
}

func TestHooks_ListsBuiltins(t *testing.T) {
	setupTestConfig(t)
	output, err := executeCommand(rootCmd, "hooks", "maya")
	if err != nil {
		t.Fatalf("hooks error = %v", err)
	}
	for _, want := range []string{"pre-launch hooks:", "post-launch hooks:", "builtin/GlobalHostData"} {
		if !strings.Contains(output, want) {
			t.Errorf("hooks output missing %q:\n%s", want, output)
		}
	}

	if _, err := executeCommand(rootCmd, "hooks", "katana"); !errors.Is(err, errors.ErrApplicationNotFound) {
		t.Errorf("hooks for unknown app error = %v, want ErrApplicationNotFound", err)
	}
}

// Creating, listing and publishing through the CLI share one store.
func TestInstancesAndPublish(t *testing.T) {
	dir := setupTestConfig(t)
	workfile := filepath.Join(dir, "work", "sh010_lighting_v001.ma")
	if err := os.MkdirAll(filepath.Dir(workfile), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(workfile, []byte("//Maya ASCII scene"), 0644); err != nil {
		t.Fatal(err)
	}
	ctxFlags := []string{"--project", "demo", "--asset", "sh010", "--task", "lighting"}

	output, err := executeCommand(rootCmd, append([]string{"instances", "create", "render", "Main",
		"--data", "frameStart=1001", "--data", "frameEnd=1100", "--workfile", workfile}, ctxFlags...)...)
	if err != nil {
		t.Fatalf("instances create error = %v\n%s", err, output)
	}
	if !strings.Contains(output, "created renderMain (render)") {
		t.Errorf("create output = %q", output)
	}

	output, err = executeCommand(rootCmd, append([]string{"instances", "list", "--workfile", workfile}, ctxFlags...)...)
	if err != nil {
		t.Fatalf("instances list error = %v", err)
	}
	for _, want := range []string{"renderMain", "workfileMain"} {
		if !strings.Contains(output, want) {
			t.Errorf("list output missing %s:\n%s", want, output)
		}
	}

	output, err = executeCommand(rootCmd, append([]string{"publish", "--workfile", workfile, "--host", "maya"}, ctxFlags...)...)
	if err != nil {
		t.Fatalf("publish error = %v\n%s", err, output)
	}
	if !strings.Contains(output, "IntegrateRepresentations") || !strings.Contains(output, "finished") {
		t.Errorf("publish output:\n%s", output)
	}
	if _, err := os.Stat(filepath.Join(dir, "work", "sh010_lighting_v002.ma")); err != nil {
		t.Errorf("workfile version not incremented: %v", err)
	}
	published := filepath.Join(dir, "publish", "demo", "sh010", "publish", "render", "renderMain", "v001", "renderMain.json")
	if _, err := os.Stat(published); err != nil {
		t.Errorf("render metadata not published: %v", err)
	}

	output, err = executeCommand(rootCmd, append([]string{"instances", "remove", "renderMain"}, ctxFlags...)...)
	if err != nil {
		t.Fatalf("instances remove error = %v\n%s", err, output)
	}
	if _, err := executeCommand(rootCmd, append([]string{"instances", "remove", "renderMain"}, ctxFlags...)...); !errors.Is(err, errors.ErrInstanceNotFound) {
		t.Errorf("second remove error = %v, want ErrInstanceNotFound", err)
	}
}

func TestConfigShow(t *testing.T) {
	setupTestConfig(t)
	output, err := executeCommand(rootCmd, "config")
	if err != nil {
		t.Fatalf("config error = %v", err)
	}
	for _, want := range []string{"# Config file: (none - using defaults)", "publish:", "copy_retries: 3", "applications:"} {
		if !strings.Contains(output, want) {
			t.Errorf("config output missing %q:\n%s", want, output)
		}
	}
}

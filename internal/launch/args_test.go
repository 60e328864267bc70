package launch

import (
	"reflect"
	"testing"

	"github.com/ynput/openpype/internal/errors"
)

func TestClearLaunchArgs(t *testing.T) {
	got := ClearLaunchArgs(
		"maya",
		[]string{"-proj", "/work"},
		[]any{"-file", []any{"scene.ma", nil}},
		nil,
		42,
	)
	want := []string{"maya", "-proj", "/work", "-file", "scene.ma", "42"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ClearLaunchArgs() = %v, want %v", got, want)
	}
}

func TestLaunchArgs_Edit(t *testing.T) {
	args := NewLaunchArgs("maya")
	if err := args.Append("-file", "a.ma"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := args.Prepend([]string{"env", "FOO=1"}); err != nil {
		t.Fatalf("Prepend() error = %v", err)
	}
	tokens, err := args.Tokens()
	if err != nil {
		t.Fatalf("Tokens() error = %v", err)
	}
	want := []string{"env", "FOO=1", "maya", "-file", "a.ma"}
	if !reflect.DeepEqual(tokens, want) {
		t.Errorf("Tokens() = %v, want %v", tokens, want)
	}

	// Tokens returns a copy
	tokens[0] = "changed"
	if cmd := args.Command(); cmd[0] != "env" {
		t.Errorf("Tokens() leaked internal slice: %v", cmd)
	}
}

func TestLaunchArgs_Join(t *testing.T) {
	tests := []struct {
		name     string
		tokens   []string
		platform string
		want     []string
	}{
		{
			name:     "posix",
			tokens:   []string{"/opt/maya/bin/maya", "-file", "/work/my scene.ma"},
			platform: "linux",
			want:     []string{"/bin/sh", "-c", "/opt/maya/bin/maya -file '/work/my scene.ma'"},
		},
		{
			name:     "posix single quote",
			tokens:   []string{"echo", "it's"},
			platform: "darwin",
			want:     []string{"/bin/sh", "-c", `echo 'it'\''s'`},
		},
		{
			name:     "windows",
			tokens:   []string{`C:\Program Files\Nuke\Nuke.exe`, "--nukex"},
			platform: "windows",
			want:     []string{"cmd.exe", "/C", `"C:\Program Files\Nuke\Nuke.exe" --nukex`},
		},
		{
			name:     "empty token",
			tokens:   []string{"app", ""},
			platform: "linux",
			want:     []string{"/bin/sh", "-c", "app ''"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := NewLaunchArgs(tt.tokens)
			if err := args.Join(ShellPrefix(tt.platform), tt.platform); err != nil {
				t.Fatalf("Join() error = %v", err)
			}
			if !args.IsJoined() {
				t.Error("IsJoined() = false after Join")
			}
			if got := args.Command(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Command() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLaunchArgs_JoinedRejectsTokenEdits(t *testing.T) {
	args := NewLaunchArgs("maya", "-batch")
	if err := args.Join(ShellPrefix("linux"), "linux"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	if err := args.Append("-x"); !errors.Is(err, errors.ErrArgsJoined) {
		t.Errorf("Append() error = %v, want ErrArgsJoined", err)
	}
	if err := args.Prepend("-x"); !errors.Is(err, errors.ErrArgsJoined) {
		t.Errorf("Prepend() error = %v, want ErrArgsJoined", err)
	}
	if _, err := args.Tokens(); !errors.Is(err, errors.ErrArgsJoined) {
		t.Errorf("Tokens() error = %v, want ErrArgsJoined", err)
	}
	if err := args.Join(ShellPrefix("linux"), "linux"); !errors.Is(err, errors.ErrArgsJoined) {
		t.Errorf("second Join() error = %v, want ErrArgsJoined", err)
	}
	if got := args.String(); got != "maya -batch" {
		t.Errorf("String() = %q", got)
	}

	// Set starts over with tokens
	args.Set("nuke")
	if args.IsJoined() {
		t.Error("IsJoined() = true after Set")
	}
	if err := args.Append("--nukex"); err != nil {
		t.Errorf("Append() after Set error = %v", err)
	}
}

func TestLaunchArgs_JoinRequiresShell(t *testing.T) {
	args := NewLaunchArgs("maya")
	if err := args.Join(nil, "linux"); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Join(nil) error = %v, want ErrInvalidInput", err)
	}
	if args.IsJoined() {
		t.Error("failed Join must leave tokens intact")
	}
}

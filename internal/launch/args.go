package launch

import (
	"fmt"
	"strings"

	"github.com/ynput/openpype/internal/errors"
)

// LaunchArgs is the command line of the process being launched. It starts as
// a token list and may be stringified once by a hook that wraps the command
// in a shell; after that, token operations fail with errors.ErrArgsJoined.
type LaunchArgs struct {
	tokens []string
	joined string
	shell  []string
}

// NewLaunchArgs creates a token list, flattening nested values.
func NewLaunchArgs(args ...any) *LaunchArgs {
	return &LaunchArgs{tokens: ClearLaunchArgs(args...)}
}

// IsJoined reports whether the arguments were stringified.
func (a *LaunchArgs) IsJoined() bool {
	return a.shell != nil
}

// Tokens returns a copy of the token list.
func (a *LaunchArgs) Tokens() ([]string, error) {
	if a.IsJoined() {
		return nil, errors.ErrArgsJoined
	}
	return append([]string(nil), a.tokens...), nil
}

// Append adds tokens at the end.
func (a *LaunchArgs) Append(args ...any) error {
	if a.IsJoined() {
		return errors.ErrArgsJoined
	}
	a.tokens = append(a.tokens, ClearLaunchArgs(args...)...)
	return nil
}

// Prepend inserts tokens before the current ones.
func (a *LaunchArgs) Prepend(args ...any) error {
	if a.IsJoined() {
		return errors.ErrArgsJoined
	}
	a.tokens = append(ClearLaunchArgs(args...), a.tokens...)
	return nil
}

// Set replaces the arguments with a new token list, undoing any join.
func (a *LaunchArgs) Set(args ...any) {
	a.tokens = ClearLaunchArgs(args...)
	a.joined = ""
	a.shell = nil
}

// Join stringifies the tokens into a single command string quoted for
// platform, to be executed through shell (e.g. ["cmd.exe", "/C"]).
func (a *LaunchArgs) Join(shell []string, platform string) error {
	if a.IsJoined() {
		return errors.ErrArgsJoined
	}
	if len(shell) == 0 {
		return errors.Wrap(errors.ErrInvalidInput, "shell prefix is empty")
	}
	a.joined = QuoteArgs(a.tokens, platform)
	a.shell = append([]string(nil), shell...)
	a.tokens = nil
	return nil
}

// Command returns the argv to execute.
func (a *LaunchArgs) Command() []string {
	if a.IsJoined() {
		return append(append([]string(nil), a.shell...), a.joined)
	}
	return append([]string(nil), a.tokens...)
}

// String renders the command for logs.
func (a *LaunchArgs) String() string {
	if a.IsJoined() {
		return a.joined
	}
	return strings.Join(a.tokens, " ")
}

// ShellPrefix returns the shell invocation that runs a single command string.
func ShellPrefix(platform string) []string {
	if NormalizePlatform(platform) == "windows" {
		return []string{"cmd.exe", "/C"}
	}
	return []string{"/bin/sh", "-c"}
}

// QuoteArgs joins tokens into one command string, quoting for platform.
func QuoteArgs(tokens []string, platform string) string {
	quote := quotePOSIX
	if NormalizePlatform(platform) == "windows" {
		quote = quoteWindows
	}
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = quote(t)
	}
	return strings.Join(quoted, " ")
}

func quotePOSIX(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`!*?[]{}()<>|&;#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func quoteWindows(s string) string {
	if s == "" {
		return `""`
	}
	if !strings.ContainsAny(s, " \t\"&|<>^") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// ClearLaunchArgs flattens nested argument values into one token list.
// Strings are kept, slices are expanded recursively, nil values are dropped
// and anything else is formatted with fmt.
func ClearLaunchArgs(args ...any) []string {
	out := make([]string, 0, len(args))
	var flatten func(v any)
	flatten = func(v any) {
		switch val := v.(type) {
		case nil:
		case string:
			out = append(out, val)
		case []string:
			out = append(out, val...)
		case [][]string:
			for _, inner := range val {
				out = append(out, inner...)
			}
		case []any:
			for _, inner := range val {
				flatten(inner)
			}
		case *LaunchArgs:
			out = append(out, val.Command()...)
		default:
			out = append(out, fmt.Sprint(val))
		}
	}
	for _, a := range args {
		flatten(a)
	}
	return out
}

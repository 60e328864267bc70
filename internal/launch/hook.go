// Package launch prepares and starts DCC application processes.
//
// A launch is driven by a [LaunchContext]: it carries the launch arguments,
// the process environment and free-form data shared between hooks. Before the
// process is spawned, pre-launch hooks run in ascending order and may mutate
// any of those; after the process exits, post-launch hooks run.
//
// # Hook Sources
//
// Hooks come from two places:
//   - a [Registry] of compiled-in hook factories
//   - manifest files (*.yaml, *.yml, *.toml) found under the configured hook
//     paths, each declaring one or more declarative hooks
//
// Every hook is constructed for every launch. Its filters ([Filter]) and its
// own Validate method decide whether it runs; hooks that do not apply stay on
// the context for inspection but are never executed.
//
// # Failure Policy
//
// A failing pre-launch hook aborts the launch and the process is never
// spawned. A failing post-launch hook is logged and the remaining post-launch
// hooks still run.
package launch

import (
	"context"
	"strconv"
	"strings"
)

// Kind distinguishes pre-launch from post-launch hooks.
type Kind string

const (
	KindPre  Kind = "pre"
	KindPost Kind = "post"
)

// ParseKind converts a manifest value to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pre", "prelaunch", "pre_launch", "":
		return KindPre, true
	case "post", "postlaunch", "post_launch":
		return KindPost, true
	}
	return "", false
}

// Hook is a unit of pre- or post-launch side effect.
type Hook interface {
	// Name identifies the hook within its source.
	Name() string
	// Kind reports whether the hook runs before spawn or after exit.
	Kind() Kind
	// Order positions the hook; nil runs after every ordered hook.
	Order() *int
	// Filter limits the applications the hook applies to.
	Filter() Filter
	// Validate performs extra runtime checks once the filter matched.
	Validate(lc *LaunchContext) bool
	// Execute applies the hook to lc.
	Execute(ctx context.Context, lc *LaunchContext) error
}

// BaseHook provides the static parts of a Hook. Embed it and implement
// Execute.
type BaseHook struct {
	HookName   string
	HookKind   Kind
	HookOrder  *int
	HookFilter Filter
}

func (b *BaseHook) Name() string   { return b.HookName }
func (b *BaseHook) Order() *int    { return b.HookOrder }
func (b *BaseHook) Filter() Filter { return b.HookFilter }

// Kind defaults to KindPre.
func (b *BaseHook) Kind() Kind {
	if b.HookKind == "" {
		return KindPre
	}
	return b.HookKind
}

// Validate always passes.
func (b *BaseHook) Validate(*LaunchContext) bool { return true }

// Order returns a pointer to n for use in BaseHook literals.
func Order(n int) *int {
	return &n
}

// BoundHook is a hook constructed for one launch.
type BoundHook struct {
	Hook Hook
	// Source is "builtin", a registry source or a manifest path
	Source string
	// Valid reports whether the hook will execute
	Valid bool
	// Reason explains why an invalid hook was skipped
	Reason string
}

// QualifiedName is "<source>/<name>"; it breaks ordering ties.
func (b BoundHook) QualifiedName() string {
	return b.Source + "/" + b.Hook.Name()
}

// OrderString renders the order for listings.
func (b BoundHook) OrderString() string {
	if o := b.Hook.Order(); o != nil {
		return strconv.Itoa(*o)
	}
	return "none"
}

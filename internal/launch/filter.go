package launch

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// Filter restricts a hook to matching applications. An empty list matches
// everything; entries in Hosts, AppGroups and AppNames may be glob patterns.
type Filter struct {
	Platforms []string `yaml:"platforms" toml:"platforms"`
	Hosts     []string `yaml:"hosts" toml:"hosts"`
	AppGroups []string `yaml:"app_groups" toml:"app_groups"`
	AppNames  []string `yaml:"app_names" toml:"app_names"`
}

// IsEmpty reports whether the filter matches every application.
func (f Filter) IsEmpty() bool {
	return len(f.Platforms) == 0 && len(f.Hosts) == 0 && len(f.AppGroups) == 0 && len(f.AppNames) == 0
}

// ClassValidation checks the filter against the resolved application and
// platform. It returns false with the failing criterion when any non-empty
// list does not match.
func ClassValidation(f Filter, app Application, platform string) (bool, string) {
	if len(f.Platforms) > 0 && !matchPlatform(f.Platforms, platform) {
		return false, fmt.Sprintf("platform %s not in %v", platform, f.Platforms)
	}
	if len(f.Hosts) > 0 && !matchAny(f.Hosts, app.Host) {
		return false, fmt.Sprintf("host %s not in %v", app.Host, f.Hosts)
	}
	if len(f.AppGroups) > 0 && !matchAny(f.AppGroups, app.Group) {
		return false, fmt.Sprintf("app group %s not in %v", app.Group, f.AppGroups)
	}
	if len(f.AppNames) > 0 && !matchAny(f.AppNames, app.FullName()) {
		return false, fmt.Sprintf("app %s not in %v", app.FullName(), f.AppNames)
	}
	return true, ""
}

// NormalizePlatform maps common platform spellings to GOOS values.
func NormalizePlatform(p string) string {
	switch p = strings.ToLower(strings.TrimSpace(p)); p {
	case "macos", "mac", "osx", "darwin":
		return "darwin"
	case "win", "win32", "win64", "windows":
		return "windows"
	case "linux", "linux2":
		return "linux"
	}
	return p
}

func matchPlatform(platforms []string, platform string) bool {
	platform = NormalizePlatform(platform)
	for _, p := range platforms {
		if NormalizePlatform(p) == platform {
			return true
		}
	}
	return false
}

var (
	globCacheMu sync.Mutex
	globCache   = make(map[string]glob.Glob)
)

// compilePattern caches compiled patterns; invalid patterns match literally.
func compilePattern(pattern string) glob.Glob {
	globCacheMu.Lock()
	defer globCacheMu.Unlock()

	if g, ok := globCache[pattern]; ok {
		return g
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		g = literal(pattern)
	}
	globCache[pattern] = g
	return g
}

type literal string

func (l literal) Match(s string) bool { return string(l) == s }

func matchAny(patterns []string, value string) bool {
	value = strings.ToLower(value)
	for _, p := range patterns {
		if compilePattern(strings.ToLower(p)).Match(value) {
			return true
		}
	}
	return false
}

// Package workfile finds, names and versions host workfiles.
package workfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/gobwas/glob"

	"github.com/ynput/openpype/internal/errors"
	"github.com/ynput/openpype/internal/template"
)

// versionPattern matches "_v012" or ".v3" style version tokens.
var versionPattern = regexp.MustCompile(`(?i)([._])v(\d+)`)

// versionSpec matches a version key carrying a pad spec.
var versionSpec = regexp.MustCompile(`\{version:[^}]*\}`)

// hostExtensions lists the workfile extensions each host can open.
var hostExtensions = map[string][]string{
	"maya":         {".ma", ".mb"},
	"nuke":         {".nk"},
	"houdini":      {".hip", ".hiplc", ".hipnc"},
	"blender":      {".blend"},
	"harmony":      {".zip"},
	"aftereffects": {".aep"},
	"photoshop":    {".psd", ".psb"},
	"tvpaint":      {".tvpp"},
	"resolve":      {".drp"},
}

// Extensions returns the workfile extensions for host, or nil if unknown.
func Extensions(host string) []string {
	return hostExtensions[strings.ToLower(host)]
}

// ParseVersion returns the last version number found in a file name.
func ParseVersion(path string) (int, bool) {
	matches := versionPattern.FindAllStringSubmatch(filepath.Base(path), -1)
	if len(matches) == 0 {
		return 0, false
	}
	v, err := strconv.Atoi(matches[len(matches)-1][2])
	if err != nil {
		return 0, false
	}
	return v, true
}

// Candidate is a workfile found on disk.
type Candidate struct {
	Path    string
	Version int
}

// Find lists workfiles in dir whose names match the workfile template with
// every key except version filled from data. Results are sorted by version.
// A missing directory yields no candidates.
func Find(dir, tmpl string, data template.Data, exts []string) ([]Candidate, error) {
	pattern, err := namePattern(tmpl, data, exts)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list workfiles: %w", err)
	}

	var found []Candidate
	for _, entry := range entries {
		if entry.IsDir() || !pattern.Match(entry.Name()) {
			continue
		}
		v, ok := ParseVersion(entry.Name())
		if !ok {
			continue
		}
		found = append(found, Candidate{Path: filepath.Join(dir, entry.Name()), Version: v})
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Version != found[j].Version {
			return found[i].Version < found[j].Version
		}
		return found[i].Path < found[j].Path
	})
	return found, nil
}

// Last returns the highest-versioned workfile, or ok=false when none exist.
func Last(dir, tmpl string, data template.Data, exts []string) (Candidate, bool, error) {
	found, err := Find(dir, tmpl, data, exts)
	if err != nil || len(found) == 0 {
		return Candidate{}, false, err
	}
	return found[len(found)-1], true, nil
}

// Next resolves the path of the next version: one above the highest existing
// version, or 1 when there is none. ext must include the dot.
func Next(dir, tmpl string, data template.Data, ext string) (string, int, error) {
	last, ok, err := Last(dir, tmpl, data, []string{ext})
	if err != nil {
		return "", 0, err
	}
	version := 1
	if ok {
		version = last.Version + 1
	}
	name, err := template.Format(tmpl, withVersion(data, version, ext))
	if err != nil {
		return "", 0, err
	}
	return filepath.Join(dir, name), version, nil
}

// Increment returns path with its version bumped, skipping versions that
// already exist on disk. Zero padding of the original token is preserved.
func Increment(path string) (string, int, error) {
	base := filepath.Base(path)
	locs := versionPattern.FindAllStringSubmatchIndex(base, -1)
	if len(locs) == 0 {
		return "", 0, errors.Wrapf(errors.ErrInvalidInput, "%s has no version token", base)
	}
	loc := locs[len(locs)-1]
	digits := base[loc[4]:loc[5]]
	current, err := strconv.Atoi(digits)
	if err != nil {
		return "", 0, errors.Wrapf(errors.ErrInvalidInput, "%s has an invalid version", base)
	}

	dir := filepath.Dir(path)
	for v := current + 1; ; v++ {
		token := fmt.Sprintf("%0*d", len(digits), v)
		candidate := filepath.Join(dir, base[:loc[4]]+token+base[loc[5]:])
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, v, nil
		} else if err != nil {
			return "", 0, fmt.Errorf("failed to check %s: %w", candidate, err)
		}
	}
}

// Copy copies src to dst, creating dst's directory. It refuses to overwrite.
func Copy(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return errors.NewAlreadyExistsError("workfile", dst)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create workfile directory: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}

func withVersion(data template.Data, version int, ext string) template.Data {
	out := make(template.Data, len(data)+2)
	for k, v := range data {
		out[k] = v
	}
	out["version"] = version
	out["ext"] = strings.TrimPrefix(ext, ".")
	return out
}

// namePattern compiles a glob for the file names tmpl can produce. The version
// is a wildcard and ext alternates over exts.
func namePattern(tmpl string, data template.Data, exts []string) (glob.Glob, error) {
	const (
		versionMark = "\x00VERSION\x00"
		extMark     = "\x00EXT\x00"
	)
	fill := make(template.Data, len(data)+2)
	for k, v := range data {
		fill[k] = v
	}
	fill["version"] = versionMark
	fill["ext"] = extMark

	// The pad spec would pad the marker; strip it before formatting.
	stripped := versionSpec.ReplaceAllString(tmpl, "{version}")
	name, err := template.Format(stripped, fill)
	if err != nil {
		return nil, err
	}

	quoted := glob.QuoteMeta(name)
	quoted = strings.ReplaceAll(quoted, glob.QuoteMeta(versionMark), "*")
	extPattern := "*"
	if len(exts) > 0 {
		trimmed := make([]string, len(exts))
		for i, e := range exts {
			trimmed[i] = glob.QuoteMeta(strings.TrimPrefix(e, "."))
		}
		extPattern = "{" + strings.Join(trimmed, ",") + "}"
	}
	quoted = strings.ReplaceAll(quoted, glob.QuoteMeta(extMark), extPattern)

	g, err := glob.Compile(quoted)
	if err != nil {
		return nil, errors.Wrapf(errors.Join(errors.ErrInvalidInput, err), "workfile template %q", tmpl)
	}
	return g, nil
}

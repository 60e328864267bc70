// Package template resolves OpenPype naming templates such as subset names,
// publish paths and the custom temp directory.
//
// Keys are written as {key}. The case of the key in the template controls the
// case of the substituted value: {variant} inserts the value unchanged,
// {Variant} capitalizes its first letter and {VARIANT} upper-cases it. Dotted
// keys ({asset.name}) walk nested maps. A format spec after a colon pads the
// value: {version:0>3} renders 7 as "007".
//
// Text wrapped in <...> is optional: the whole section is dropped when any key
// inside it is missing. A missing key outside an optional section is an error;
// resolution never returns a partially substituted string.
package template

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/valyala/fasttemplate"

	"github.com/ynput/openpype/internal/errors"
)

const (
	startTag = "{"
	endTag   = "}"
)

// Data is the set of values available to a template.
type Data map[string]any

// errOptionalMissing aborts rendering of an optional section.
var errOptionalMissing = errors.New("optional key missing")

// padSpec matches "<fill><align><width>", e.g. "0>3" or " <8".
var padSpec = regexp.MustCompile(`^(.)([<>])(\d+)$`)

// zeroSpec matches printf-like "03d" / "03".
var zeroSpec = regexp.MustCompile(`^0(\d+)d?$`)

// Template is a parsed naming template.
type Template struct {
	raw      string
	segments []segment
}

type segment struct {
	text     string
	optional bool
}

// New parses raw and reports unbalanced keys or optional sections.
func New(raw string) (*Template, error) {
	segments, err := split(raw)
	if err != nil {
		return nil, err
	}
	return &Template{raw: raw, segments: segments}, nil
}

// MustNew is like New but panics on a malformed template.
func MustNew(raw string) *Template {
	t, err := New(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the raw template text.
func (t *Template) String() string { return t.raw }

// Format resolves the template against data.
// It returns a *errors.TemplateError listing every missing required key.
func (t *Template) Format(data Data) (string, error) {
	var (
		out     strings.Builder
		missing []string
	)

	for _, seg := range t.segments {
		if seg.optional {
			s, err := fasttemplate.ExecuteFuncStringWithErr(seg.text, startTag, endTag, func(w io.Writer, tag string) (int, error) {
				value, ok, err := resolve(data, tag)
				if err != nil {
					return 0, err
				}
				if !ok {
					return 0, errOptionalMissing
				}
				return w.Write([]byte(value))
			})
			if errors.Is(err, errOptionalMissing) {
				continue
			}
			if err != nil {
				return "", t.syntaxError(err)
			}
			out.WriteString(s)
			continue
		}

		var specErr error
		s, err := fasttemplate.ExecuteFuncStringWithErr(seg.text, startTag, endTag, func(w io.Writer, tag string) (int, error) {
			value, ok, err := resolve(data, tag)
			if err != nil {
				specErr = err
				return 0, err
			}
			if !ok {
				missing = appendUnique(missing, keyOf(tag))
				return 0, nil
			}
			return w.Write([]byte(value))
		})
		if specErr != nil {
			return "", t.syntaxError(specErr)
		}
		if err != nil {
			return "", t.syntaxError(err)
		}
		out.WriteString(s)
	}

	if len(missing) > 0 {
		return "", errors.NewTemplateError(t.raw, missing)
	}
	return out.String(), nil
}

// Keys returns the distinct keys referenced by the template, lower-cased,
// in order of first appearance.
func (t *Template) Keys() []string {
	var keys []string
	for _, seg := range t.segments {
		rest := seg.text
		for {
			start := strings.Index(rest, startTag)
			if start < 0 {
				break
			}
			end := strings.Index(rest[start:], endTag)
			if end < 0 {
				break
			}
			keys = appendUnique(keys, strings.ToLower(keyOf(rest[start+1:start+end])))
			rest = rest[start+end+1:]
		}
	}
	return keys
}

// RequiredKeys returns the keys outside optional sections.
func (t *Template) RequiredKeys() []string {
	required := &Template{raw: t.raw}
	for _, seg := range t.segments {
		if !seg.optional {
			required.segments = append(required.segments, seg)
		}
	}
	return required.Keys()
}

// Format parses and resolves raw in one step.
func Format(raw string, data Data) (string, error) {
	t, err := New(raw)
	if err != nil {
		return "", err
	}
	return t.Format(data)
}

func (t *Template) syntaxError(err error) error {
	return errors.Wrapf(errors.Join(errors.ErrInvalidInput, err), "template %q", t.raw)
}

// split breaks raw into literal and optional segments. Angle brackets inside
// a key (as in a pad spec) do not open or close a section.
func split(raw string) ([]segment, error) {
	var (
		segments []segment
		current  strings.Builder
		inKey    bool
		inOpt    bool
	)
	flush := func(optional bool) {
		if current.Len() > 0 || optional {
			segments = append(segments, segment{text: current.String(), optional: optional})
		}
		current.Reset()
	}

	for _, r := range raw {
		switch {
		case r == '{':
			if inKey {
				return nil, errors.Wrapf(errors.ErrInvalidInput, "template %q: nested '{'", raw)
			}
			inKey = true
		case r == '}':
			if !inKey {
				return nil, errors.Wrapf(errors.ErrInvalidInput, "template %q: unmatched '}'", raw)
			}
			inKey = false
		case r == '<' && !inKey:
			if inOpt {
				return nil, errors.Wrapf(errors.ErrInvalidInput, "template %q: nested optional section", raw)
			}
			flush(false)
			inOpt = true
			continue
		case r == '>' && !inKey:
			if !inOpt {
				return nil, errors.Wrapf(errors.ErrInvalidInput, "template %q: unmatched '>'", raw)
			}
			flush(true)
			inOpt = false
			continue
		}
		current.WriteRune(r)
	}
	if inKey {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "template %q: unclosed '{'", raw)
	}
	if inOpt {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "template %q: unclosed optional section", raw)
	}
	flush(false)
	return segments, nil
}

// keyOf strips the format spec from a tag.
func keyOf(tag string) string {
	key, _, _ := strings.Cut(tag, ":")
	return key
}

// resolve looks up tag in data and applies case transforms and padding.
// ok is false when the key is absent or its value is nil.
func resolve(data Data, tag string) (value string, ok bool, err error) {
	key, spec, hasSpec := strings.Cut(tag, ":")

	raw, found := lookup(data, key)
	if !found {
		raw, found = lookup(data, strings.ToLower(key))
		if !found {
			return "", false, nil
		}
		value = applyCase(key, stringify(raw))
	} else {
		value = stringify(raw)
	}

	if hasSpec {
		value, err = pad(value, spec)
		if err != nil {
			return "", false, err
		}
	}
	return value, true, nil
}

// lookup walks dotted keys through nested maps.
func lookup(data Data, key string) (any, bool) {
	var current any = map[string]any(data)
	for _, part := range strings.Split(key, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			if d, isData := current.(Data); isData {
				m = d
			} else {
				return nil, false
			}
		}
		current, ok = m[part]
		if !ok || current == nil {
			return nil, false
		}
	}
	return current, true
}

// applyCase mirrors the case of the template key onto value.
func applyCase(key, value string) string {
	last := key
	if i := strings.LastIndex(key, "."); i >= 0 {
		last = key[i+1:]
	}
	if last == "" {
		return value
	}
	if isUpper(last) && utf8.RuneCountInString(last) > 1 {
		return strings.ToUpper(value)
	}
	first, _ := utf8.DecodeRuneInString(last)
	if unicode.IsUpper(first) {
		return Capitalize(value)
	}
	return value
}

func isUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

// Capitalize upper-cases the first letter of s.
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

func pad(value, spec string) (string, error) {
	var (
		fill  = " "
		align = ">"
		width int
	)
	if m := padSpec.FindStringSubmatch(spec); m != nil {
		fill, align = m[1], m[2]
		width, _ = strconv.Atoi(m[3])
	} else if m := zeroSpec.FindStringSubmatch(spec); m != nil {
		fill = "0"
		width, _ = strconv.Atoi(m[1])
	} else {
		return "", fmt.Errorf("unsupported format spec %q", spec)
	}

	n := utf8.RuneCountInString(value)
	if n >= width {
		return value, nil
	}
	padding := strings.Repeat(fill, width-n)
	if align == "<" {
		return value + padding, nil
	}
	return padding + value, nil
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

// Package attrdef provides typed attribute definitions that describe what a
// creation UI must render for a family, and their JSON wire format.
//
// Every definition serializes to a flat map:
//
//	{"type": "number", "key": "frameStart", "label": "Frame start",
//	 "tooltip": "", "default": 1001, "hidden": false, "disabled": false,
//	 "minimum": 0, "maximum": 99999, "decimals": 0}
//
// Deserialize reverses the mapping so definitions can travel over the host
// bridge and be rebuilt on the other side.
package attrdef

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/ynput/openpype/internal/errors"
)

// Type identifies the kind of an attribute definition on the wire.
type Type string

// Attribute definition types.
const (
	TypeBool      Type = "bool"
	TypeEnum      Type = "enum"
	TypeNumber    Type = "number"
	TypeText      Type = "text"
	TypeFile      Type = "path"
	TypeLabel     Type = "label"
	TypeSeparator Type = "separator"
	TypeHidden    Type = "hidden"
)

// Def is a single attribute definition.
type Def interface {
	Type() Type
	AttrKey() string
	DefaultValue() any
	Validate(value any) error
	Serialize() map[string]any
}

// Common holds the fields shared by every definition.
type Common struct {
	Key      string
	Label    string
	Tooltip  string
	Hidden   bool
	Disabled bool
}

// AttrKey returns the data key the definition controls.
func (c Common) AttrKey() string { return c.Key }

func (c Common) serialize(t Type, def any) map[string]any {
	return map[string]any{
		"type":     string(t),
		"key":      c.Key,
		"label":    c.Label,
		"tooltip":  c.Tooltip,
		"default":  def,
		"hidden":   c.Hidden,
		"disabled": c.Disabled,
	}
}

func (c Common) invalid(value any, format string, args ...any) error {
	return errors.NewValidationError(fmt.Sprintf(format, args...)).WithField(c.Key).WithValue(value)
}

// BoolDef is a checkbox.
type BoolDef struct {
	Common
	Default bool
}

func (d *BoolDef) Type() Type        { return TypeBool }
func (d *BoolDef) DefaultValue() any { return d.Default }

func (d *BoolDef) Validate(value any) error {
	if _, ok := value.(bool); !ok {
		return d.invalid(value, "must be a boolean")
	}
	return nil
}

func (d *BoolDef) Serialize() map[string]any { return d.serialize(TypeBool, d.Default) }

// EnumItem is one selectable enum value.
type EnumItem struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// EnumDef is a drop-down or multi-select list.
type EnumDef struct {
	Common
	Items          []EnumItem
	Multiselection bool
	// Default is a string, or a []string when Multiselection is set.
	Default any
}

func (d *EnumDef) Type() Type { return TypeEnum }

func (d *EnumDef) DefaultValue() any {
	if d.Default != nil {
		return d.Default
	}
	if d.Multiselection {
		return []string{}
	}
	if len(d.Items) > 0 {
		return d.Items[0].Value
	}
	return ""
}

func (d *EnumDef) hasValue(v string) bool {
	for _, item := range d.Items {
		if item.Value == v {
			return true
		}
	}
	return false
}

func (d *EnumDef) Validate(value any) error {
	if d.Multiselection {
		values, ok := toStrings(value)
		if !ok {
			return d.invalid(value, "must be a list of strings")
		}
		for _, v := range values {
			if !d.hasValue(v) {
				return d.invalid(value, "%q is not one of the allowed values", v)
			}
		}
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return d.invalid(value, "must be a string")
	}
	if !d.hasValue(s) {
		return d.invalid(value, "must be one of: %s", strings.Join(d.values(), ", "))
	}
	return nil
}

func (d *EnumDef) values() []string {
	out := make([]string, len(d.Items))
	for i, item := range d.Items {
		out[i] = item.Value
	}
	return out
}

func (d *EnumDef) Serialize() map[string]any {
	m := d.serialize(TypeEnum, d.DefaultValue())
	items := make([]any, len(d.Items))
	for i, item := range d.Items {
		items[i] = map[string]any{"value": item.Value, "label": item.Label}
	}
	m["items"] = items
	m["multiselection"] = d.Multiselection
	return m
}

// NumberDef is a bounded numeric field. Decimals == 0 means integers only.
type NumberDef struct {
	Common
	Minimum  float64
	Maximum  float64
	Decimals int
	Default  float64
}

func (d *NumberDef) Type() Type        { return TypeNumber }
func (d *NumberDef) DefaultValue() any { return d.Default }

func (d *NumberDef) Validate(value any) error {
	n, ok := toFloat(value)
	if !ok {
		return d.invalid(value, "must be a number")
	}
	if n < d.Minimum || n > d.Maximum {
		return d.invalid(value, "must be between %v and %v", d.Minimum, d.Maximum)
	}
	if d.Decimals == 0 && n != math.Trunc(n) {
		return d.invalid(value, "must be a whole number")
	}
	return nil
}

func (d *NumberDef) Serialize() map[string]any {
	m := d.serialize(TypeNumber, d.Default)
	m["minimum"] = d.Minimum
	m["maximum"] = d.Maximum
	m["decimals"] = d.Decimals
	return m
}

// TextDef is a free-form text field, optionally constrained by a regex.
type TextDef struct {
	Common
	Multiline   bool
	Placeholder string
	Regex       string
	Default     string
}

func (d *TextDef) Type() Type        { return TypeText }
func (d *TextDef) DefaultValue() any { return d.Default }

func (d *TextDef) Validate(value any) error {
	s, ok := value.(string)
	if !ok {
		return d.invalid(value, "must be a string")
	}
	if !d.Multiline && strings.ContainsAny(s, "\r\n") {
		return d.invalid(value, "must be a single line")
	}
	if d.Regex != "" {
		re, err := regexp.Compile(d.Regex)
		if err != nil {
			return d.invalid(d.Regex, "has an invalid regex: %v", err)
		}
		if !re.MatchString(s) {
			return d.invalid(value, "must match %s", d.Regex)
		}
	}
	return nil
}

func (d *TextDef) Serialize() map[string]any {
	m := d.serialize(TypeText, d.Default)
	m["multiline"] = d.Multiline
	m["placeholder"] = d.Placeholder
	m["regex"] = d.Regex
	return m
}

// FileDef selects files or folders.
type FileDef struct {
	Common
	// Extensions lists allowed extensions including the dot (".exr").
	// Empty allows any extension.
	Extensions     []string
	Folders        bool
	SingleItem     bool
	AllowSequences bool
	// Default is a string for single items, otherwise []string.
	Default any
}

func (d *FileDef) Type() Type { return TypeFile }

func (d *FileDef) DefaultValue() any {
	if d.Default != nil {
		return d.Default
	}
	if d.SingleItem {
		return ""
	}
	return []string{}
}

func (d *FileDef) Validate(value any) error {
	var paths []string
	if d.SingleItem {
		s, ok := value.(string)
		if !ok {
			return d.invalid(value, "must be a single path")
		}
		if s != "" {
			paths = []string{s}
		}
	} else {
		list, ok := toStrings(value)
		if !ok {
			return d.invalid(value, "must be a list of paths")
		}
		paths = list
	}
	if d.Folders || len(d.Extensions) == 0 {
		return nil
	}
	for _, p := range paths {
		if !d.allowedExtension(p) {
			return d.invalid(value, "%q does not have an allowed extension (%s)", p, strings.Join(d.Extensions, ", "))
		}
	}
	return nil
}

func (d *FileDef) allowedExtension(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range d.Extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

func (d *FileDef) Serialize() map[string]any {
	m := d.serialize(TypeFile, d.DefaultValue())
	exts := make([]any, len(d.Extensions))
	for i, e := range d.Extensions {
		exts[i] = e
	}
	m["extensions"] = exts
	m["folders"] = d.Folders
	m["single_item"] = d.SingleItem
	m["allow_sequences"] = d.AllowSequences
	return m
}

// UILabelDef renders read-only text. It carries no value.
type UILabelDef struct {
	Common
}

func (d *UILabelDef) Type() Type                { return TypeLabel }
func (d *UILabelDef) DefaultValue() any         { return nil }
func (d *UILabelDef) Validate(any) error        { return nil }
func (d *UILabelDef) Serialize() map[string]any { return d.serialize(TypeLabel, nil) }

// UISeparatorDef renders a visual separator. It carries no value.
type UISeparatorDef struct {
	Common
}

func (d *UISeparatorDef) Type() Type                { return TypeSeparator }
func (d *UISeparatorDef) DefaultValue() any         { return nil }
func (d *UISeparatorDef) Validate(any) error        { return nil }
func (d *UISeparatorDef) Serialize() map[string]any { return d.serialize(TypeSeparator, nil) }

// HiddenDef stores a value that is never shown.
type HiddenDef struct {
	Common
	Default any
}

func (d *HiddenDef) Type() Type                { return TypeHidden }
func (d *HiddenDef) DefaultValue() any         { return d.Default }
func (d *HiddenDef) Validate(any) error        { return nil }
func (d *HiddenDef) Serialize() map[string]any { return d.serialize(TypeHidden, d.Default) }

// IsValueDef reports whether d stores a value (labels and separators do not).
func IsValueDef(d Def) bool {
	switch d.Type() {
	case TypeLabel, TypeSeparator:
		return false
	}
	return true
}

// ApplyDefaults returns a copy of values with defaults filled for every
// value definition whose key is missing. Keys without a definition are kept.
func ApplyDefaults(defs []Def, values map[string]any) map[string]any {
	out := make(map[string]any, len(values)+len(defs))
	for k, v := range values {
		out[k] = v
	}
	for _, d := range defs {
		if !IsValueDef(d) || d.AttrKey() == "" {
			continue
		}
		if _, ok := out[d.AttrKey()]; !ok {
			out[d.AttrKey()] = d.DefaultValue()
		}
	}
	return out
}

// ValidateValues validates every defined key present in values and returns
// all failures joined.
func ValidateValues(defs []Def, values map[string]any) error {
	var errs []error
	for _, d := range defs {
		if !IsValueDef(d) {
			continue
		}
		v, ok := values[d.AttrKey()]
		if !ok {
			continue
		}
		if err := d.Validate(v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SerializeAll serializes a list of definitions for the wire.
func SerializeAll(defs []Def) []map[string]any {
	out := make([]map[string]any, len(defs))
	for i, d := range defs {
		out[i] = d.Serialize()
	}
	return out
}

// Deserialize rebuilds a definition from its wire form.
func Deserialize(m map[string]any) (Def, error) {
	t, _ := m["type"].(string)
	common := Common{
		Key:      str(m["key"]),
		Label:    str(m["label"]),
		Tooltip:  str(m["tooltip"]),
		Hidden:   boolean(m["hidden"]),
		Disabled: boolean(m["disabled"]),
	}

	switch Type(t) {
	case TypeBool:
		return &BoolDef{Common: common, Default: boolean(m["default"])}, nil
	case TypeEnum:
		d := &EnumDef{Common: common, Multiselection: boolean(m["multiselection"])}
		items, _ := m["items"].([]any)
		for _, raw := range items {
			switch item := raw.(type) {
			case map[string]any:
				d.Items = append(d.Items, EnumItem{Value: str(item["value"]), Label: str(item["label"])})
			case string:
				d.Items = append(d.Items, EnumItem{Value: item, Label: item})
			}
		}
		if d.Multiselection {
			if values, ok := toStrings(m["default"]); ok {
				d.Default = values
			}
		} else if s, ok := m["default"].(string); ok {
			d.Default = s
		}
		return d, nil
	case TypeNumber:
		d := &NumberDef{Common: common}
		d.Minimum, _ = toFloat(m["minimum"])
		d.Maximum, _ = toFloat(m["maximum"])
		d.Default, _ = toFloat(m["default"])
		dec, _ := toFloat(m["decimals"])
		d.Decimals = int(dec)
		return d, nil
	case TypeText:
		return &TextDef{
			Common:      common,
			Multiline:   boolean(m["multiline"]),
			Placeholder: str(m["placeholder"]),
			Regex:       str(m["regex"]),
			Default:     str(m["default"]),
		}, nil
	case TypeFile:
		d := &FileDef{
			Common:         common,
			Folders:        boolean(m["folders"]),
			SingleItem:     boolean(m["single_item"]),
			AllowSequences: boolean(m["allow_sequences"]),
		}
		d.Extensions, _ = toStrings(m["extensions"])
		if d.SingleItem {
			if s, ok := m["default"].(string); ok {
				d.Default = s
			}
		} else if values, ok := toStrings(m["default"]); ok {
			d.Default = values
		}
		return d, nil
	case TypeLabel:
		return &UILabelDef{Common: common}, nil
	case TypeSeparator:
		return &UISeparatorDef{Common: common}, nil
	case TypeHidden:
		return &HiddenDef{Common: common, Default: m["default"]}, nil
	}
	return nil, errors.Wrapf(errors.ErrInvalidInput, "unknown attribute definition type %q", t)
}

// DeserializeAll rebuilds a list of definitions, failing on the first
// unknown type.
func DeserializeAll(list []map[string]any) ([]Def, error) {
	defs := make([]Def, 0, len(list))
	for i, m := range list {
		d, err := Deserialize(m)
		if err != nil {
			return nil, errors.Wrapf(err, "attribute definition %d", i)
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// Keys returns the sorted keys of value definitions.
func Keys(defs []Def) []string {
	var keys []string
	for _, d := range defs {
		if IsValueDef(d) && d.AttrKey() != "" && !slices.Contains(keys, d.AttrKey()) {
			keys = append(keys, d.AttrKey())
		}
	}
	sort.Strings(keys)
	return keys
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func boolean(v any) bool {
	b, _ := v.(bool)
	return b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toStrings(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case nil:
		return nil, true
	}
	return nil, false
}

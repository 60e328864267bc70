package attrdef

import (
	"encoding/json"
	"testing"

	"github.com/ynput/openpype/internal/errors"
)

func renderDefs() []Def {
	return []Def{
		&BoolDef{Common: Common{Key: "farm", Label: "Submit to farm"}, Default: true},
		&EnumDef{
			Common: Common{Key: "renderer", Label: "Renderer"},
			Items: []EnumItem{
				{Value: "arnold", Label: "Arnold"},
				{Value: "vray", Label: "V-Ray"},
			},
		},
		&NumberDef{Common: Common{Key: "frameStart"}, Minimum: 0, Maximum: 99999, Default: 1001},
		&UISeparatorDef{},
		&TextDef{Common: Common{Key: "comment"}, Multiline: true},
		&FileDef{Common: Common{Key: "files"}, Extensions: []string{".exr", ".png"}},
		&UILabelDef{Common: Common{Label: "Review options"}},
		&HiddenDef{Common: Common{Key: "instance_node"}, Default: "render_setup"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		def     Def
		value   any
		wantErr bool
	}{
		{"bool ok", &BoolDef{Common: Common{Key: "farm"}}, true, false},
		{"bool wrong type", &BoolDef{Common: Common{Key: "farm"}}, "yes", true},
		{"enum ok", &EnumDef{Common: Common{Key: "r"}, Items: []EnumItem{{Value: "a"}}}, "a", false},
		{"enum unknown", &EnumDef{Common: Common{Key: "r"}, Items: []EnumItem{{Value: "a"}}}, "b", true},
		{"enum multi ok", &EnumDef{Common: Common{Key: "r"}, Multiselection: true, Items: []EnumItem{{Value: "a"}, {Value: "b"}}}, []any{"a", "b"}, false},
		{"enum multi unknown", &EnumDef{Common: Common{Key: "r"}, Multiselection: true, Items: []EnumItem{{Value: "a"}}}, []string{"a", "c"}, true},
		{"number in range", &NumberDef{Common: Common{Key: "n"}, Maximum: 10}, 5, false},
		{"number json float", &NumberDef{Common: Common{Key: "n"}, Maximum: 10}, float64(5), false},
		{"number below min", &NumberDef{Common: Common{Key: "n"}, Minimum: 1, Maximum: 10}, 0, true},
		{"number above max", &NumberDef{Common: Common{Key: "n"}, Maximum: 10}, 11, true},
		{"number fractional without decimals", &NumberDef{Common: Common{Key: "n"}, Maximum: 10}, 1.5, true},
		{"number fractional with decimals", &NumberDef{Common: Common{Key: "n"}, Maximum: 10, Decimals: 2}, 1.5, false},
		{"text single line", &TextDef{Common: Common{Key: "t"}}, "a\nb", true},
		{"text multiline", &TextDef{Common: Common{Key: "t"}, Multiline: true}, "a\nb", false},
		{"text regex match", &TextDef{Common: Common{Key: "t"}, Regex: `^[a-zA-Z0-9_]+$`}, "Main_01", false},
		{"text regex mismatch", &TextDef{Common: Common{Key: "t"}, Regex: `^[a-zA-Z0-9_]+$`}, "main 01", true},
		{"file allowed ext", &FileDef{Common: Common{Key: "f"}, Extensions: []string{".exr"}}, []string{"/a/b.EXR"}, false},
		{"file bad ext", &FileDef{Common: Common{Key: "f"}, Extensions: []string{".exr"}}, []string{"/a/b.jpg"}, true},
		{"file single", &FileDef{Common: Common{Key: "f"}, SingleItem: true}, "/a/b.ma", false},
		{"file single given list", &FileDef{Common: Common{Key: "f"}, SingleItem: true}, []string{"/a"}, true},
		{"folders ignore ext", &FileDef{Common: Common{Key: "f"}, Folders: true, Extensions: []string{".exr"}}, []string{"/a"}, false},
		{"hidden accepts anything", &HiddenDef{Common: Common{Key: "h"}}, 42, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%v) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if err != nil {
				var ve *errors.ValidationError
				if !errors.As(err, &ve) {
					t.Errorf("error type = %T, want *errors.ValidationError", err)
				}
			}
		})
	}
}

func TestSerialize_WireShape(t *testing.T) {
	d := &NumberDef{
		Common:   Common{Key: "frameStart", Label: "Frame start", Tooltip: "first frame"},
		Minimum:  0,
		Maximum:  99999,
		Decimals: 0,
		Default:  1001,
	}

	m := d.Serialize()
	for _, key := range []string{"type", "key", "label", "tooltip", "default", "hidden", "disabled", "minimum", "maximum", "decimals"} {
		if _, ok := m[key]; !ok {
			t.Errorf("serialized map missing %q", key)
		}
	}
	if m["type"] != "number" {
		t.Errorf("type = %v, want number", m["type"])
	}
	if _, err := json.Marshal(m); err != nil {
		t.Errorf("serialized form must be JSON-compatible: %v", err)
	}
}

func TestDeserialize_ThroughJSON(t *testing.T) {
	defs := renderDefs()

	raw, err := json.Marshal(SerializeAll(defs))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	restored, err := DeserializeAll(decoded)
	if err != nil {
		t.Fatalf("DeserializeAll failed: %v", err)
	}
	if len(restored) != len(defs) {
		t.Fatalf("restored %d defs, want %d", len(restored), len(defs))
	}

	for i := range defs {
		if restored[i].Type() != defs[i].Type() {
			t.Errorf("def %d type = %v, want %v", i, restored[i].Type(), defs[i].Type())
		}
		if restored[i].AttrKey() != defs[i].AttrKey() {
			t.Errorf("def %d key = %q, want %q", i, restored[i].AttrKey(), defs[i].AttrKey())
		}
	}

	enum := restored[1].(*EnumDef)
	if len(enum.Items) != 2 || enum.Items[1].Label != "V-Ray" {
		t.Errorf("enum items = %+v", enum.Items)
	}
	number := restored[2].(*NumberDef)
	if number.Maximum != 99999 || number.Default != 1001 {
		t.Errorf("number = %+v", number)
	}
	file := restored[5].(*FileDef)
	if len(file.Extensions) != 2 {
		t.Errorf("file extensions = %v", file.Extensions)
	}
}

func TestDeserialize_UnknownType(t *testing.T) {
	_, err := Deserialize(map[string]any{"type": "color", "key": "c"})
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Deserialize() error = %v, want ErrInvalidInput", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	values := ApplyDefaults(renderDefs(), map[string]any{"farm": false, "custom": 1})

	if values["farm"] != false {
		t.Error("explicit values must not be overwritten")
	}
	if values["renderer"] != "arnold" {
		t.Errorf("renderer = %v, want first enum item", values["renderer"])
	}
	if values["frameStart"] != float64(1001) {
		t.Errorf("frameStart = %v, want 1001", values["frameStart"])
	}
	if values["custom"] != 1 {
		t.Error("undefined keys must be kept")
	}
	if _, ok := values[""]; ok {
		t.Error("labels and separators must not produce values")
	}
}

func TestValidateValues(t *testing.T) {
	err := ValidateValues(renderDefs(), map[string]any{
		"farm":       "no",
		"renderer":   "redshift",
		"frameStart": 1001,
	})
	if err == nil {
		t.Fatal("ValidateValues() should fail")
	}
	var ve *errors.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("error should contain a ValidationError: %v", err)
	}

	if err := ValidateValues(renderDefs(), map[string]any{"farm": true}); err != nil {
		t.Errorf("ValidateValues() = %v, want nil", err)
	}
}

func TestKeys(t *testing.T) {
	keys := Keys(renderDefs())
	want := []string{"comment", "farm", "files", "frameStart", "instance_node", "renderer"}
	if len(keys) != len(want) {
		t.Fatalf("Keys() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Keys()[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

package workfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ynput/openpype/internal/errors"
	"github.com/ynput/openpype/internal/template"
)

const workfileTemplate = "{asset}_{task}_v{version:0>3}.{ext}"

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(name), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		path   string
		want   int
		wantOK bool
	}{
		{"sh010_lighting_v003.ma", 3, true},
		{"/work/sh010/sh010_comp_v12.nk", 12, true},
		{"render.V007.exr", 7, true},
		{"asset_v001_extra_v004.ma", 4, true},
		{"noversion.ma", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := ParseVersion(tt.path)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseVersion(%q) = (%d, %v), want (%d, %v)", tt.path, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestLastAndNext(t *testing.T) {
	dir := t.TempDir()
	data := template.Data{"asset": "sh010", "task": "lighting"}

	if _, ok, err := Last(dir, workfileTemplate, data, Extensions("maya")); err != nil || ok {
		t.Fatalf("Last() on empty dir = ok %v, err %v", ok, err)
	}

	path, version, err := Next(dir, workfileTemplate, data, ".ma")
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if version != 1 || filepath.Base(path) != "sh010_lighting_v001.ma" {
		t.Errorf("Next() = (%s, %d), want v001", path, version)
	}

	touch(t, dir, "sh010_lighting_v001.ma")
	touch(t, dir, "sh010_lighting_v010.mb")
	touch(t, dir, "sh010_lighting_v002.ma")
	touch(t, dir, "sh010_anim_v099.ma")      // other task
	touch(t, dir, "sh010_lighting_v050.nk")  // other host
	touch(t, dir, "sh010_lighting_final.ma") // no version

	last, ok, err := Last(dir, workfileTemplate, data, Extensions("maya"))
	if err != nil || !ok {
		t.Fatalf("Last() = ok %v, err %v", ok, err)
	}
	if last.Version != 10 || filepath.Base(last.Path) != "sh010_lighting_v010.mb" {
		t.Errorf("Last() = %+v, want v010.mb", last)
	}

	path, version, err = Next(dir, workfileTemplate, data, ".ma")
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if version != 3 || filepath.Base(path) != "sh010_lighting_v003.ma" {
		t.Errorf("Next(.ma) = (%s, %d), want v003", path, version)
	}
}

func TestFind_MissingTemplateKey(t *testing.T) {
	_, err := Find(t.TempDir(), workfileTemplate, template.Data{"asset": "sh010"}, nil)
	if !errors.Is(err, errors.ErrTemplateKeyMissing) {
		t.Errorf("Find() error = %v, want ErrTemplateKeyMissing", err)
	}
}

func TestIncrement(t *testing.T) {
	dir := t.TempDir()
	current := touch(t, dir, "sh010_comp_v009.nk")
	touch(t, dir, "sh010_comp_v010.nk")

	next, version, err := Increment(current)
	if err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	if version != 11 || filepath.Base(next) != "sh010_comp_v011.nk" {
		t.Errorf("Increment() = (%s, %d), want existing v010 skipped", next, version)
	}

	if _, _, err := Increment(filepath.Join(dir, "comp.nk")); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Increment() without version error = %v, want ErrInvalidInput", err)
	}
}

func TestCopy(t *testing.T) {
	dir := t.TempDir()
	src := touch(t, dir, "template.ma")
	dst := filepath.Join(dir, "work", "sh010_lighting_v001.ma")

	if err := Copy(src, dst); err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	content, err := os.ReadFile(dst)
	if err != nil || string(content) != "template.ma" {
		t.Errorf("copied content = %q, err %v", content, err)
	}

	if err := Copy(src, dst); !errors.Is(err, errors.ErrAlreadyExists) {
		t.Errorf("second Copy() error = %v, want ErrAlreadyExists", err)
	}
}

func TestExtensions(t *testing.T) {
	if got := Extensions("Nuke"); len(got) != 1 || got[0] != ".nk" {
		t.Errorf("Extensions(Nuke) = %v", got)
	}
	if got := Extensions("unknown"); got != nil {
		t.Errorf("Extensions(unknown) = %v, want nil", got)
	}
}

package launch

import (
	"context"
	"testing"
)

func TestClassValidation(t *testing.T) {
	app := Application{Group: "maya", Variant: "2024", Host: "maya"}

	tests := []struct {
		name     string
		filter   Filter
		platform string
		want     bool
	}{
		{"empty filter matches all", Filter{}, "linux", true},
		{"platform match", Filter{Platforms: []string{"linux", "windows"}}, "linux", true},
		{"platform alias", Filter{Platforms: []string{"macos"}}, "darwin", true},
		{"platform mismatch", Filter{Platforms: []string{"windows"}}, "linux", false},
		{"host match", Filter{Hosts: []string{"nuke", "maya"}}, "linux", true},
		{"host mismatch", Filter{Hosts: []string{"nuke"}}, "linux", false},
		{"host case insensitive", Filter{Hosts: []string{"Maya"}}, "linux", true},
		{"group mismatch", Filter{AppGroups: []string{"houdini"}}, "linux", false},
		{"app name exact", Filter{AppNames: []string{"maya/2024"}}, "linux", true},
		{"app name glob", Filter{AppNames: []string{"maya/20*"}}, "linux", true},
		{"app name mismatch", Filter{AppNames: []string{"maya/2023"}}, "linux", false},
		{"one failing list rejects", Filter{Hosts: []string{"maya"}, Platforms: []string{"windows"}}, "linux", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := ClassValidation(tt.filter, app, tt.platform)
			if got != tt.want {
				t.Errorf("ClassValidation() = %v (%s), want %v", got, reason, tt.want)
			}
			if !got && reason == "" {
				t.Error("rejection must carry a reason")
			}
		})
	}
}

// A hook whose filter does not match must never execute.
func TestFilteredHookNeverExecutes(t *testing.T) {
	filters := map[string]Filter{
		"platforms":  {Platforms: []string{"windows"}},
		"hosts":      {Hosts: []string{"nuke"}},
		"app_groups": {AppGroups: []string{"nuke"}},
		"app_names":  {AppNames: []string{"nuke/*"}},
	}

	for name, f := range filters {
		t.Run(name, func(t *testing.T) {
			var log []string
			filtered := newRecordHook("Filtered", Order(1), &log)
			filtered.HookFilter = f
			plain := newRecordHook("Plain", Order(2), &log)

			spawner := &fakeSpawner{}
			lc := NewLaunchContext(testApp(), ContextOptions{
				Platform:  "linux",
				Args:      []any{"maya"},
				Discovery: &DiscoveryResult{Pre: discovered("test", filtered, plain)},
				Spawner:   spawner,
			})
			if _, err := lc.Launch(context.Background()); err != nil {
				t.Fatalf("Launch() error = %v", err)
			}
			if len(log) != 1 || log[0] != "Plain" {
				t.Errorf("executed hooks = %v, want only Plain", log)
			}

			// Invalid hooks are still constructed and listed
			if len(lc.PreHooks) != 2 {
				t.Errorf("PreHooks = %d, want 2", len(lc.PreHooks))
			}
			for _, b := range lc.PreHooks {
				if b.Hook.Name() == "Filtered" && (b.Valid || b.Reason == "") {
					t.Errorf("Filtered hook bound as %+v", b)
				}
			}
		})
	}
}

package config

import (
	"strings"
	"testing"
)

func hasFieldError(errs []ValidationError, field string) bool {
	for _, err := range errs {
		if err.Field == field {
			return true
		}
	}
	return false
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   123,
		Message: "must be greater than zero",
	}

	expected := "test.field: must be greater than zero (got: 123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()
	errs := cfg.Validate()
	if len(errs) != 0 {
		t.Errorf("Default config should be valid, got %d errors: %v", len(errs), errs)
	}
}

func TestConfig_Validate_Applications(t *testing.T) {
	tests := []struct {
		name      string
		group     ApplicationGroup
		groupName string
		wantField string
	}{
		{
			name:      "no variants",
			groupName: "houdini",
			group:     ApplicationGroup{},
			wantField: "applications.houdini.variants",
		},
		{
			name:      "slash in group name",
			groupName: "maya/bad",
			group: ApplicationGroup{Variants: map[string]ApplicationVariant{
				"2024": {},
			}},
			wantField: "applications.maya/bad",
		},
		{
			name:      "unknown platform",
			groupName: "nuke",
			group: ApplicationGroup{Variants: map[string]ApplicationVariant{
				"14-0": {Executables: map[string][]string{"amiga": {"nuke"}}},
			}},
			wantField: "applications.nuke.variants.14-0.executables",
		},
		{
			name:      "malformed group environment",
			groupName: "blender",
			group: ApplicationGroup{
				Environment: []string{"NOEQUALS"},
				Variants:    map[string]ApplicationVariant{"3-6": {}},
			},
			wantField: "applications.blender.environment",
		},
		{
			name:      "empty key in variant environment",
			groupName: "blender",
			group: ApplicationGroup{Variants: map[string]ApplicationVariant{
				"3-6": {Environment: []string{"=value"}},
			}},
			wantField: "applications.blender.variants.3-6.environment",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Applications = map[string]ApplicationGroup{tt.groupName: tt.group}
			errs := cfg.Validate()
			if !hasFieldError(errs, tt.wantField) {
				t.Errorf("expected error for %s, got %v", tt.wantField, errs)
			}
		})
	}
}

func TestConfig_Validate_Store(t *testing.T) {
	t.Run("invalid backend", func(t *testing.T) {
		cfg := Default()
		cfg.Store.Backend = "mongo"
		if !hasFieldError(cfg.Validate(), "store.backend") {
			t.Error("expected error for invalid backend")
		}
	})

	t.Run("sqlite requires path", func(t *testing.T) {
		cfg := Default()
		cfg.Store.Backend = "sqlite"
		cfg.Store.SQLitePath = ""
		if !hasFieldError(cfg.Validate(), "store.sqlite_path") {
			t.Error("expected error for missing sqlite path")
		}
	})

	t.Run("file requires instance store dir", func(t *testing.T) {
		cfg := Default()
		cfg.Paths.InstanceStore = ""
		if !hasFieldError(cfg.Validate(), "paths.instance_store") {
			t.Error("expected error for missing instance store directory")
		}
	})

	t.Run("memory needs nothing", func(t *testing.T) {
		cfg := Default()
		cfg.Store.Backend = "memory"
		cfg.Paths.InstanceStore = ""
		if errs := cfg.Validate(); len(errs) != 0 {
			t.Errorf("unexpected errors: %v", errs)
		}
	})
}

func TestCheckTemplateSyntax(t *testing.T) {
	tests := []struct {
		tmpl    string
		wantErr string
	}{
		{"{family}{Variant}", ""},
		{"{family}{Variant}<_{renderlayer}>", ""},
		{"v{version:0>3}", ""},
		{"{family", "unclosed '{'"},
		{"family}", "unmatched '}'"},
		{"{{family}}", "nested '{' is not allowed"},
		{"<_{layer}", "unclosed optional section '<'"},
		{"_{layer}>", "unmatched '>'"},
		{"<<{a}>>", "nested optional section is not allowed"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.tmpl, func(t *testing.T) {
			if got := checkTemplateSyntax(tt.tmpl); got != tt.wantErr {
				t.Errorf("checkTemplateSyntax(%q) = %q, want %q", tt.tmpl, got, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_Templates(t *testing.T) {
	t.Run("empty subset name", func(t *testing.T) {
		cfg := Default()
		cfg.Templates.SubsetName = "  "
		if !hasFieldError(cfg.Validate(), "templates.subset_name") {
			t.Error("expected error for empty subset name template")
		}
	})

	t.Run("bad profile", func(t *testing.T) {
		cfg := Default()
		cfg.Templates.SubsetNameProfiles["review"] = "{family"
		if !hasFieldError(cfg.Validate(), "templates.subset_name_profiles.review") {
			t.Error("expected error for malformed profile")
		}
	})

	t.Run("bad tmpdir template", func(t *testing.T) {
		cfg := Default()
		cfg.Paths.Tmpdir = "/tmp/{project"
		if !hasFieldError(cfg.Validate(), "paths.tmpdir") {
			t.Error("expected error for malformed tmpdir template")
		}
	})
}

func TestConfig_Validate_Publish(t *testing.T) {
	tests := []struct {
		name    string
		retries int
		targets []string
		wantErr bool
	}{
		{"defaults", 3, []string{"local"}, false},
		{"zero retries", 0, nil, false},
		{"negative retries", -1, nil, true},
		{"too many retries", 21, nil, true},
		{"blank target", 3, []string{"farm", ""}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Publish.CopyRetries = tt.retries
			cfg.Publish.Targets = tt.targets
			errs := cfg.Validate()
			got := hasFieldError(errs, "publish.copy_retries") || hasFieldError(errs, "publish.targets")
			if got != tt.wantErr {
				t.Errorf("Validate() errors = %v, wantErr %v", errs, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_Logging(t *testing.T) {
	t.Run("valid log levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", ""} {
			cfg := Default()
			cfg.Logging.Level = level
			if hasFieldError(cfg.Validate(), "logging.level") {
				t.Errorf("level %q should be valid", level)
			}
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfg := Default()
		cfg.Logging.Level = "verbose"
		if !hasFieldError(cfg.Validate(), "logging.level") {
			t.Error("expected error for invalid log level")
		}
	})
}

func TestConfig_Validate_Bridge(t *testing.T) {
	tests := []struct {
		name    string
		address string
		pollMs  int
		field   string
	}{
		{"empty address", "", 50, "bridge.address"},
		{"zero poll", "127.0.0.1:0", 0, "bridge.poll_interval_ms"},
		{"huge poll", "127.0.0.1:0", 60000, "bridge.poll_interval_ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Bridge.Address = tt.address
			cfg.Bridge.PollIntervalMs = tt.pollMs
			if !hasFieldError(cfg.Validate(), tt.field) {
				t.Errorf("expected error for %s", tt.field)
			}
		})
	}
}

func TestConfig_Validate_Paths(t *testing.T) {
	t.Run("null byte", func(t *testing.T) {
		cfg := Default()
		cfg.Paths.StagingRoot = "/tmp/\x00staging"
		if !hasFieldError(cfg.Validate(), "paths.staging_root") {
			t.Error("expected error for null byte in path")
		}
	})

	t.Run("hook path too long", func(t *testing.T) {
		cfg := Default()
		cfg.Launch.HookPaths = []string{"/" + strings.Repeat("a", 5000)}
		if !hasFieldError(cfg.Validate(), "launch.hook_paths") {
			t.Error("expected error for overlong hook path")
		}
	})
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = "bogus"
	cfg.Logging.Level = "bogus"
	cfg.Bridge.Address = ""

	errs := cfg.Validate()
	if len(errs) < 3 {
		t.Errorf("expected at least 3 errors, got %d: %v", len(errs), errs)
	}
}

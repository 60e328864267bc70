package config

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "store.backend")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidPlatforms returns the GOOS values accepted as executable keys
func ValidPlatforms() []string {
	return []string{"linux", "darwin", "windows"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateApplications()...)
	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateTemplates()...)
	errors = append(errors, c.validatePublish()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateBridge()...)
	errors = append(errors, c.validatePaths()...)

	return errors
}

// validateApplications validates application groups and their variants.
// Groups are visited in sorted order so error output is stable.
func (c *Config) validateApplications() []ValidationError {
	var errors []ValidationError

	groups := make([]string, 0, len(c.Applications))
	for name := range c.Applications {
		groups = append(groups, name)
	}
	sort.Strings(groups)

	for _, name := range groups {
		group := c.Applications[name]
		prefix := "applications." + name

		if strings.Contains(name, "/") {
			errors = append(errors, ValidationError{
				Field:   prefix,
				Value:   name,
				Message: "group name must not contain '/'",
			})
		}
		if len(group.Variants) == 0 {
			errors = append(errors, ValidationError{
				Field:   prefix + ".variants",
				Value:   0,
				Message: "at least one variant is required",
			})
		}
		errors = append(errors, validateEnvironment(group.Environment, prefix+".environment")...)

		variants := make([]string, 0, len(group.Variants))
		for v := range group.Variants {
			variants = append(variants, v)
		}
		sort.Strings(variants)

		for _, v := range variants {
			variant := group.Variants[v]
			vprefix := prefix + ".variants." + v
			for platform := range variant.Executables {
				if !slices.Contains(ValidPlatforms(), platform) {
					errors = append(errors, ValidationError{
						Field:   vprefix + ".executables",
						Value:   platform,
						Message: fmt.Sprintf("platform must be one of: %s", strings.Join(ValidPlatforms(), ", ")),
					})
				}
			}
			errors = append(errors, validateEnvironment(variant.Environment, vprefix+".environment")...)
		}
	}

	return errors
}

// validateEnvironment checks "KEY=value" entries
func validateEnvironment(entries []string, field string) []ValidationError {
	var errors []ValidationError
	for _, entry := range entries {
		key, _, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(key) == "" {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   entry,
				Message: "entries must have the form KEY=value",
			})
		}
	}
	return errors
}

// validateStore validates the StoreConfig
func (c *Config) validateStore() []ValidationError {
	var errors []ValidationError

	if !IsValidStoreBackend(c.Store.Backend) {
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Value:   c.Store.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidStoreBackends(), ", ")),
		})
	}

	if c.Store.Backend == "sqlite" && c.Store.SQLitePath == "" {
		errors = append(errors, ValidationError{
			Field:   "store.sqlite_path",
			Value:   c.Store.SQLitePath,
			Message: "is required when store.backend is sqlite",
		})
	}

	if c.Store.Backend == "file" && c.Paths.InstanceStore == "" {
		errors = append(errors, ValidationError{
			Field:   "paths.instance_store",
			Value:   c.Paths.InstanceStore,
			Message: "is required when store.backend is file",
		})
	}

	return errors
}

// validateTemplates validates the TemplatesConfig
func (c *Config) validateTemplates() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Templates.SubsetName) == "" {
		errors = append(errors, ValidationError{
			Field:   "templates.subset_name",
			Value:   c.Templates.SubsetName,
			Message: "must not be empty",
		})
	}

	check := func(field, tmpl string) {
		if msg := checkTemplateSyntax(tmpl); msg != "" {
			errors = append(errors, ValidationError{Field: field, Value: tmpl, Message: msg})
		}
	}
	check("templates.subset_name", c.Templates.SubsetName)
	check("templates.publish_path", c.Templates.PublishPath)
	check("templates.workfile", c.Templates.Workfile)
	check("paths.tmpdir", c.Paths.Tmpdir)

	families := make([]string, 0, len(c.Templates.SubsetNameProfiles))
	for family := range c.Templates.SubsetNameProfiles {
		families = append(families, family)
	}
	sort.Strings(families)
	for _, family := range families {
		check("templates.subset_name_profiles."+family, c.Templates.SubsetNameProfiles[family])
	}

	return errors
}

// checkTemplateSyntax reports unbalanced key braces or optional sections.
// Returns an empty string when the template is well formed.
func checkTemplateSyntax(tmpl string) string {
	braces, optional := 0, 0
	for _, r := range tmpl {
		switch r {
		case '{':
			braces++
			if braces > 1 {
				return "nested '{' is not allowed"
			}
		case '}':
			braces--
			if braces < 0 {
				return "unmatched '}'"
			}
		case '<':
			if braces == 0 {
				optional++
				if optional > 1 {
					return "nested optional section is not allowed"
				}
			}
		case '>':
			if braces == 0 {
				optional--
				if optional < 0 {
					return "unmatched '>'"
				}
			}
		}
	}
	if braces != 0 {
		return "unclosed '{'"
	}
	if optional != 0 {
		return "unclosed optional section '<'"
	}
	return ""
}

// validatePublish validates the PublishConfig
func (c *Config) validatePublish() []ValidationError {
	var errors []ValidationError

	if c.Publish.CopyRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "publish.copy_retries",
			Value:   c.Publish.CopyRetries,
			Message: "must be non-negative",
		})
	}

	const maxCopyRetries = 20
	if c.Publish.CopyRetries > maxCopyRetries {
		errors = append(errors, ValidationError{
			Field:   "publish.copy_retries",
			Value:   c.Publish.CopyRetries,
			Message: fmt.Sprintf("exceeds maximum of %d", maxCopyRetries),
		})
	}

	for _, target := range c.Publish.Targets {
		if strings.TrimSpace(target) == "" {
			errors = append(errors, ValidationError{
				Field:   "publish.targets",
				Value:   target,
				Message: "targets must not be empty strings",
			})
			break
		}
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}

// validateBridge validates the BridgeConfig
func (c *Config) validateBridge() []ValidationError {
	var errors []ValidationError

	if c.Bridge.Address == "" {
		errors = append(errors, ValidationError{
			Field:   "bridge.address",
			Value:   c.Bridge.Address,
			Message: "must not be empty",
		})
	}

	const minPollMs, maxPollMs = 1, 10000
	if c.Bridge.PollIntervalMs < minPollMs || c.Bridge.PollIntervalMs > maxPollMs {
		errors = append(errors, ValidationError{
			Field:   "bridge.poll_interval_ms",
			Value:   c.Bridge.PollIntervalMs,
			Message: fmt.Sprintf("must be between %d and %d", minPollMs, maxPollMs),
		})
	}

	return errors
}

// validatePaths validates the PathsConfig
func (c *Config) validatePaths() []ValidationError {
	var errors []ValidationError

	paths := []struct {
		field string
		value string
	}{
		{"paths.repos_root", c.Paths.ReposRoot},
		{"paths.instance_store", c.Paths.InstanceStore},
		{"paths.staging_root", c.Paths.StagingRoot},
		{"paths.publish_root", c.Paths.PublishRoot},
		{"paths.workfile_root", c.Paths.WorkfileRoot},
		{"store.sqlite_path", c.Store.SQLitePath},
		{"logging.dir", c.Logging.Dir},
	}
	for _, hp := range c.Launch.HookPaths {
		paths = append(paths, struct {
			field string
			value string
		}{"launch.hook_paths", hp})
	}

	// Reasonable path length limit (most filesystems have limits around 4096)
	const maxPathLength = 4096
	for _, p := range paths {
		if p.value == "" {
			continue
		}
		if strings.ContainsRune(p.value, '\x00') {
			errors = append(errors, ValidationError{
				Field:   p.field,
				Value:   p.value,
				Message: "path contains invalid null character",
			})
		}
		if len(p.value) > maxPathLength {
			errors = append(errors, ValidationError{
				Field:   p.field,
				Value:   p.value,
				Message: fmt.Sprintf("path exceeds maximum length of %d characters", maxPathLength),
			})
		}
	}

	return errors
}

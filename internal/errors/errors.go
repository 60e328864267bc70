// Package errors provides centralized error definitions and error handling utilities
// for the OpenPype pipeline. It defines domain-specific errors, semantic error types,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - CreatorError: user-correctable precondition failures while creating instances
//   - LaunchError: an application launch was aborted (ApplicationLaunchFailed)
//   - ExecutableNotFoundError: no executable exists for an application variant
//   - TemplateError: a template could not be resolved because keys are missing
//   - PluginError: a publish plugin failed while processing a context or instance
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - AlreadyExistsError: resource already exists
//   - ValidationError: invalid input or state
//
// # Usage
//
//	err := errors.NewCreatorError("subset already exists", errors.ErrDuplicateSubset).
//		WithCreator("render").WithSubset("renderMain")
//
//	var creatorErr *errors.CreatorError
//	if errors.As(err, &creatorErr) { ... }
//
//	if errors.IsUserFacing(err) { ... }
//
// # Error Classification
//
// User-facing errors carry messages meant to be shown in a dialog or on the
// command line instead of a stack trace. CreatorError, LaunchError,
// ExecutableNotFoundError and TemplateError are user-facing by default.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Launch-related sentinel errors
var (
	// ErrHookFailed indicates that a launch hook returned an error.
	ErrHookFailed = New("launch hook failed")
	// ErrLaunchAborted indicates that a launch was aborted before spawning.
	ErrLaunchAborted = New("application launch aborted")
	// ErrExecutableNotFound indicates that no executable exists for an application.
	ErrExecutableNotFound = New("application executable not found")
	// ErrApplicationNotFound indicates that an application is not configured.
	ErrApplicationNotFound = New("application not found")
	// ErrArgsJoined indicates that launch arguments were already joined into a
	// single command string and can no longer be edited token by token.
	ErrArgsJoined = New("launch arguments already joined")
)

// Creator-related sentinel errors
var (
	// ErrDuplicateSubset indicates that a subset name is already used by a sibling instance.
	ErrDuplicateSubset = New("subset already exists")
	// ErrInstanceNotFound indicates that an instance could not be found.
	ErrInstanceNotFound = New("instance not found")
	// ErrCreatorNotFound indicates that no creator is registered for an identifier.
	ErrCreatorNotFound = New("creator not found")
	// ErrInvalidSelection indicates that the host selection does not satisfy a creator.
	ErrInvalidSelection = New("invalid selection")
	// ErrInvalidPayload indicates that a family payload failed validation.
	ErrInvalidPayload = New("invalid family payload")
)

// Template-related sentinel errors
var (
	// ErrTemplateKeyMissing indicates that a template referenced a key that was not supplied.
	ErrTemplateKeyMissing = New("template key missing")
)

// Publish-related sentinel errors
var (
	// ErrDependencyCycle indicates a circular dependency between plugins.
	ErrDependencyCycle = New("dependency cycle detected")
	// ErrPublishFailed indicates that a publish run did not succeed.
	ErrPublishFailed = New("publish failed")
	// ErrValidationFailed indicates that a validator rejected an instance.
	ErrValidationFailed = New("validation failed")
)

// General sentinel errors
var (
	// ErrNotFound indicates that a resource does not exist.
	ErrNotFound = New("not found")
	// ErrAlreadyExists indicates that a resource already exists.
	ErrAlreadyExists = New("already exists")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// PipelineError is the base interface for all OpenPype errors.
type PipelineError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error      { return e.cause }
func (e *baseError) Severity() Severity { return e.severity }
func (e *baseError) IsRetryable() bool  { return e.retryable }
func (e *baseError) IsUserFacing() bool { return e.userFacing }

// format renders "<prefix> [k=v, ...]: message: cause".
func (e *baseError) format(prefix string, parts []string) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// CreatorError represents a user-correctable precondition failure raised by
// a creator: no selection, too many selected nodes, duplicate subset name.
// Calling code shows the message to the user instead of a stack trace.
//
// Example:
//
//	err := errors.NewCreatorError(`subset "renderMain" already exists`, errors.ErrDuplicateSubset)
//	err = err.WithCreator("render")
//	fmt.Println(err) // creator error [creator=render]: subset "renderMain" already exists: subset already exists
type CreatorError struct {
	baseError
	Creator string
	Subset  string
}

// NewCreatorError creates a new CreatorError.
func NewCreatorError(message string, cause error) *CreatorError {
	return &CreatorError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithCreator adds the creator identifier to the error context.
func (e *CreatorError) WithCreator(identifier string) *CreatorError {
	e.Creator = identifier
	return e
}

// WithSubset adds the subset name to the error context.
func (e *CreatorError) WithSubset(subset string) *CreatorError {
	e.Subset = subset
	return e
}

// Error returns the formatted error message.
func (e *CreatorError) Error() string {
	var parts []string
	if e.Creator != "" {
		parts = append(parts, "creator="+e.Creator)
	}
	if e.Subset != "" {
		parts = append(parts, "subset="+e.Subset)
	}
	return e.format("creator error", parts)
}

// Is matches any *CreatorError target as well as the wrapped cause.
func (e *CreatorError) Is(target error) bool {
	if _, ok := target.(*CreatorError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// LaunchError represents a failed application launch (ApplicationLaunchFailed).
// When a pre-launch hook aborted the launch, Hook names it.
type LaunchError struct {
	baseError
	App  string
	Hook string
}

// NewLaunchError creates a new LaunchError.
func NewLaunchError(message string, cause error) *LaunchError {
	return &LaunchError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithApp adds the application name to the error context.
func (e *LaunchError) WithApp(app string) *LaunchError {
	e.App = app
	return e
}

// WithHook adds the failing hook name to the error context.
func (e *LaunchError) WithHook(hook string) *LaunchError {
	e.Hook = hook
	return e
}

// Error returns the formatted error message.
func (e *LaunchError) Error() string {
	var parts []string
	if e.App != "" {
		parts = append(parts, "app="+e.App)
	}
	if e.Hook != "" {
		parts = append(parts, "hook="+e.Hook)
	}
	return e.format("launch error", parts)
}

// Is matches any *LaunchError target as well as the wrapped cause.
func (e *LaunchError) Is(target error) bool {
	if _, ok := target.(*LaunchError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// ExecutableNotFoundError is returned when none of the configured executables
// of an application variant exist on this machine.
type ExecutableNotFoundError struct {
	baseError
	App   string
	Paths []string
}

// NewExecutableNotFoundError creates a new ExecutableNotFoundError.
func NewExecutableNotFoundError(app string, paths []string) *ExecutableNotFoundError {
	return &ExecutableNotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("executable for %q was not found", app),
			cause:      ErrExecutableNotFound,
			severity:   SeverityError,
			userFacing: true,
		},
		App:   app,
		Paths: paths,
	}
}

// Error returns the formatted error message.
func (e *ExecutableNotFoundError) Error() string {
	if len(e.Paths) == 0 {
		return fmt.Sprintf("%s: no executables configured", e.message)
	}
	return fmt.Sprintf("%s (tried: %s)", e.message, strings.Join(e.Paths, ", "))
}

// TemplateError reports the keys a template needed but did not get.
type TemplateError struct {
	baseError
	Template    string
	MissingKeys []string
}

// NewTemplateError creates a new TemplateError.
func NewTemplateError(template string, missing []string) *TemplateError {
	return &TemplateError{
		baseError: baseError{
			message:    fmt.Sprintf("missing keys %s", strings.Join(missing, ", ")),
			cause:      ErrTemplateKeyMissing,
			severity:   SeverityError,
			userFacing: true,
		},
		Template:    template,
		MissingKeys: missing,
	}
}

// Error returns the formatted error message.
func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %q: %s", e.Template, e.message)
}

// PluginError represents a failure of a publish plugin.
type PluginError struct {
	baseError
	Plugin   string
	Instance string
	Stage    string
}

// NewPluginError creates a new PluginError.
func NewPluginError(plugin string, cause error) *PluginError {
	return &PluginError{
		baseError: baseError{
			message:  "plugin failed",
			cause:    cause,
			severity: SeverityError,
		},
		Plugin: plugin,
	}
}

// WithInstance adds the instance name to the error context.
func (e *PluginError) WithInstance(name string) *PluginError {
	e.Instance = name
	return e
}

// WithStage adds the stage name to the error context.
func (e *PluginError) WithStage(stage string) *PluginError {
	e.Stage = stage
	return e
}

// Error returns the formatted error message.
func (e *PluginError) Error() string {
	parts := []string{"plugin=" + e.Plugin}
	if e.Stage != "" {
		parts = append(parts, "stage="+e.Stage)
	}
	if e.Instance != "" {
		parts = append(parts, "instance="+e.Instance)
	}
	return e.format("publish error", parts)
}

// Is matches any *PluginError target as well as the wrapped cause.
func (e *PluginError) Is(target error) bool {
	if _, ok := target.(*PluginError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError indicates that a resource could not be found.
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s %q not found", resourceType, resourceID),
			cause:      ErrNotFound,
			severity:   SeverityError,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	return e.message
}

// AlreadyExistsError indicates that a resource already exists.
type AlreadyExistsError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(resourceType, resourceID string) *AlreadyExistsError {
	return &AlreadyExistsError{
		baseError: baseError{
			message:    fmt.Sprintf("%s %q already exists", resourceType, resourceID),
			cause:      ErrAlreadyExists,
			severity:   SeverityError,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// Error returns the formatted error message.
func (e *AlreadyExistsError) Error() string {
	return e.message
}

// ValidationError indicates invalid input or state.
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			cause:      ErrInvalidInput,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField adds the field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the offending value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	switch {
	case e.Field != "" && e.Value != nil:
		return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.message, e.Value)
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Field, e.message)
	default:
		return e.message
	}
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable reports whether any error in the chain is marked retryable.
func IsRetryable(err error) bool {
	var pe PipelineError
	if As(err, &pe) {
		return pe.IsRetryable()
	}
	return false
}

// IsUserFacing reports whether err carries a message meant for users.
func IsUserFacing(err error) bool {
	var pe PipelineError
	if As(err, &pe) {
		return pe.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity of err, defaulting to SeverityError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityInfo
	}
	var pe PipelineError
	if As(err, &pe) {
		return pe.Severity()
	}
	return SeverityError
}

// Wrap adds context to an error. It returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. It returns nil if err is nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

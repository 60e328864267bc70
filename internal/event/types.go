package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "launch.started", "publish.finished")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// Event types published by the pipeline.
const (
	TypeHookExecuted    = "launch.hook.executed"
	TypeHookFailed      = "launch.hook.failed"
	TypeLaunchStarted   = "launch.started"
	TypeLaunchExited    = "launch.exited"
	TypeInstanceCreated = "creator.instance.created"
	TypeInstanceUpdated = "creator.instance.updated"
	TypeInstanceRemoved = "creator.instance.removed"
	TypePluginProcessed = "publish.plugin.processed"
	TypePublishFinished = "publish.finished"
)

// -----------------------------------------------------------------------------
// Launch Events
// -----------------------------------------------------------------------------

// HookExecutedEvent is emitted after a launch hook ran. Failed hooks are
// published with type TypeHookFailed and a non-nil Err.
type HookExecutedEvent struct {
	baseEvent
	App      string
	Hook     string
	Kind     string // "pre" or "post"
	Duration time.Duration
	Err      error
}

// NewHookExecutedEvent creates a HookExecutedEvent.
func NewHookExecutedEvent(app, hook, kind string, d time.Duration, err error) HookExecutedEvent {
	eventType := TypeHookExecuted
	if err != nil {
		eventType = TypeHookFailed
	}
	return HookExecutedEvent{
		baseEvent: newBaseEvent(eventType),
		App:       app,
		Hook:      hook,
		Kind:      kind,
		Duration:  d,
		Err:       err,
	}
}

// LaunchStartedEvent is emitted when an application process was spawned.
type LaunchStartedEvent struct {
	baseEvent
	App     string
	PID     int
	Command []string
}

// NewLaunchStartedEvent creates a LaunchStartedEvent.
func NewLaunchStartedEvent(app string, pid int, command []string) LaunchStartedEvent {
	return LaunchStartedEvent{
		baseEvent: newBaseEvent(TypeLaunchStarted),
		App:       app,
		PID:       pid,
		Command:   command,
	}
}

// LaunchExitedEvent is emitted when an application process exited.
type LaunchExitedEvent struct {
	baseEvent
	App      string
	PID      int
	ExitCode int
}

// NewLaunchExitedEvent creates a LaunchExitedEvent.
func NewLaunchExitedEvent(app string, pid, exitCode int) LaunchExitedEvent {
	return LaunchExitedEvent{
		baseEvent: newBaseEvent(TypeLaunchExited),
		App:       app,
		PID:       pid,
		ExitCode:  exitCode,
	}
}

// -----------------------------------------------------------------------------
// Creator Events
// -----------------------------------------------------------------------------

// InstanceChangedEvent is emitted when a creator created, updated or removed
// an instance. EventType distinguishes the three.
type InstanceChangedEvent struct {
	baseEvent
	InstanceID string
	Creator    string
	Family     string
	Subset     string
	Changes    []string
}

// NewInstanceChangedEvent creates an InstanceChangedEvent of the given type.
func NewInstanceChangedEvent(eventType, instanceID, creator, family, subset string, changes []string) InstanceChangedEvent {
	return InstanceChangedEvent{
		baseEvent:  newBaseEvent(eventType),
		InstanceID: instanceID,
		Creator:    creator,
		Family:     family,
		Subset:     subset,
		Changes:    changes,
	}
}

// -----------------------------------------------------------------------------
// Publish Events
// -----------------------------------------------------------------------------

// PluginProcessedEvent is emitted for every plugin call of a publish run.
type PluginProcessedEvent struct {
	baseEvent
	RunID    string
	Plugin   string
	Stage    string
	Instance string // empty for context plugins
	Success  bool
	Duration time.Duration
	Err      error
}

// NewPluginProcessedEvent creates a PluginProcessedEvent.
func NewPluginProcessedEvent(runID, plugin, stage, instance string, d time.Duration, err error) PluginProcessedEvent {
	return PluginProcessedEvent{
		baseEvent: newBaseEvent(TypePluginProcessed),
		RunID:     runID,
		Plugin:    plugin,
		Stage:     stage,
		Instance:  instance,
		Success:   err == nil,
		Duration:  d,
		Err:       err,
	}
}

// PublishFinishedEvent is emitted once a publish run ended.
type PublishFinishedEvent struct {
	baseEvent
	RunID    string
	Success  bool
	Results  int
	Failures int
}

// NewPublishFinishedEvent creates a PublishFinishedEvent.
func NewPublishFinishedEvent(runID string, success bool, results, failures int) PublishFinishedEvent {
	return PublishFinishedEvent{
		baseEvent: newBaseEvent(TypePublishFinished),
		RunID:     runID,
		Success:   success,
		Results:   results,
		Failures:  failures,
	}
}

// Package event provides a pub-sub event bus for decoupled communication
// between the launch pipeline, the creator layer, the publish runner and
// whatever reports on them (CLI output, metrics, the host bridge).
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Launch:
//   - [HookExecutedEvent]: a launch hook finished (successfully or not)
//   - [LaunchStartedEvent]: the application process was spawned
//   - [LaunchExitedEvent]: the application process exited
//
// Creator:
//   - [InstanceChangedEvent]: an instance was created, updated or removed
//
// Publish:
//   - [PluginProcessedEvent]: a plugin finished processing a context or instance
//   - [PublishFinishedEvent]: a publish run ended
//
// # Delivery
//
// Publish is synchronous: handlers run on the publishing goroutine in
// registration order, specific handlers before wildcard handlers. A panicking
// handler is recovered and logged and does not block the remaining handlers.
package event

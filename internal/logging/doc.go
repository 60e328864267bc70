// Package logging provides structured logging for OpenPype launches and
// publish runs.
//
// The package wraps Go's log/slog to write JSON-formatted records. Child
// loggers carry persistent context (session, application, hook, plugin,
// instance) so that a failure can be traced back to the component that
// raised it:
//
//	logger, err := logging.NewLogger("/path/to/logs", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	hookLog := logger.WithApp("maya/2024").WithHook("core/GlobalHostData")
//	hookLog.Info("hook executed", "duration_ms", 3)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"hook executed","app":"maya/2024","hook":"core/GlobalHostData","duration_ms":3}
//
// For tests, use [NopLogger] to discard all output.
//
// # Thread Safety
//
// [Logger] is safe for concurrent use; child loggers share the underlying
// handler and file.
package logging

package bridge

import (
	"time"

	"github.com/ynput/openpype/internal/logging"
)

const (
	// defaultMaxConnections bounds concurrently served connections.
	defaultMaxConnections = 16
	// defaultCallTimeout bounds how long one request waits for the main thread.
	defaultCallTimeout = 30 * time.Second
)

// Option configures a Server.
type Option func(*config)

type config struct {
	logger         *logging.Logger
	maxConnections int
	callTimeout    time.Duration
}

// WithLogger sets the logger for the server.
func WithLogger(logger *logging.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMaxConnections limits concurrently served connections. Further
// connections wait in the accept backlog. A zero or negative value is
// replaced with the default (16).
func WithMaxConnections(n int) Option {
	return func(c *config) {
		c.maxConnections = n
	}
}

// WithCallTimeout bounds how long a request waits for the main thread to
// run it. A zero or negative value is replaced with the default (30s).
func WithCallTimeout(d time.Duration) Option {
	return func(c *config) {
		c.callTimeout = d
	}
}

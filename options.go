package feedminer

import (
	"errors"
	"log/slog"
	"strings"
	"time"
)

// minerConfig holds mutable state during Miner construction.
type minerConfig struct {
	nodes           []Node
	pollInterval    time.Duration
	port            int
	maxConcurrency  int
	configDir       string
	metrics         bool
	controlToken    string
	logger          *slog.Logger
	recordCallbacks []func(PollResult)
}

// Option is a function that configures a [Miner] instance during construction.
//
// Built-in options: [WithNode], [WithNodes], [WithPollInterval], [WithPort],
// [WithMaxConcurrency], [WithConfigDir], [WithMetrics], [WithControlToken],
// [WithLogger], [WithRecordCallback].
type Option func(*minerConfig) error

// WithNode adds a single [Node] to the polling list.
func WithNode(n Node) Option {
	return func(cfg *minerConfig) error {
		cfg.nodes = append(cfg.nodes, n)
		return nil
	}
}

// WithNodes adds multiple [Node] values to the polling list.
func WithNodes(nodes ...Node) Option {
	return func(cfg *minerConfig) error {
		cfg.nodes = append(cfg.nodes, nodes...)
		return nil
	}
}

// WithPollInterval sets how often nodes without a custom interval are
// polled. Defaults to 60 seconds.
//
// Returns an error if the duration is zero or negative.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *minerConfig) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		cfg.pollInterval = d
		return nil
	}
}

// WithPort sets the HTTP port of the API server. Defaults to 8080.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *minerConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithMaxConcurrency sets the maximum number of queries in flight at once.
// Defaults to 10.
//
// Returns an error if the value is zero or negative.
func WithMaxConcurrency(n int) Option {
	return func(cfg *minerConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithConfigDir sets the directory holding the nodes' side files. Defaults
// to the working directory.
func WithConfigDir(dir string) Option {
	return func(cfg *minerConfig) error {
		if dir == "" {
			return errors.New("config dir cannot be empty")
		}
		cfg.configDir = dir
		return nil
	}
}

// WithMetrics enables the Prometheus metrics endpoint at /metrics.
func WithMetrics(enabled bool) Option {
	return func(cfg *minerConfig) error {
		cfg.metrics = enabled
		return nil
	}
}

// WithControlToken enables the control endpoints of the API (side config
// updates and hups), which then require "Authorization: Bearer <token>".
// Without a token the endpoints are not served.
func WithControlToken(token string) Option {
	return func(cfg *minerConfig) error {
		if strings.TrimSpace(token) == "" {
			return errors.New("control token cannot be blank")
		}
		cfg.controlToken = token
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *minerConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithRecordCallback registers a function called after every poll, once the
// outcome has been stored.
//
// Callbacks run synchronously from a single goroutine in registration order
// and must not block. Panics within callbacks are recovered and logged.
// Each callback receives its own copy of the records.
//
// Nil callbacks are silently ignored.
func WithRecordCallback(cb func(PollResult)) Option {
	return func(cfg *minerConfig) error {
		if cb == nil {
			return nil
		}
		cfg.recordCallbacks = append(cfg.recordCallbacks, cb)
		return nil
	}
}

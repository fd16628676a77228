// Package log wraps slog for the vertad services: structured JSON or text
// output tagged with the service identity, plus helpers for the fields the
// chain follower logs over and over.
package log

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Logger embeds slog.Logger and remembers the service identity so derived
// loggers keep it.
type Logger struct {
	*slog.Logger
	service string
	version string
}

// New builds a logger writing to stdout. Unknown levels fall back to info
// and unknown formats to JSON. Source locations are attached only at
// debug level.
func New(service, version, level, format string) *Logger {
	logLevel := parseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger:  slog.New(handler).With("service", service, "version", version),
		service: service,
		version: version,
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithContext returns a logger carrying the request and trace IDs found in
// ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	logger := l.Logger
	if reqID := ctx.Value("request_id"); reqID != nil {
		logger = logger.With("request_id", reqID)
	}
	if traceID := ctx.Value("trace_id"); traceID != nil {
		logger = logger.With("trace_id", traceID)
	}
	return &Logger{Logger: logger, service: l.service, version: l.version}
}

// WithFields returns a logger with extra key/value pairs attached.
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger:  l.With(fields...),
		service: l.service,
		version: l.version,
	}
}

// WithComponent returns a logger with a component field
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields("component", component)
}

// WithNetwork returns a logger with the consensus network field
func (l *Logger) WithNetwork(network string) *Logger {
	return l.WithFields("network", network)
}

// WithBlock returns a logger with block-specific fields
func (l *Logger) WithBlock(hash string, height int64) *Logger {
	return l.WithFields("block_hash", hash, "block_height", height)
}

// WithTarget returns a logger with target-specific fields
func (l *Logger) WithTarget(bits uint32, height int64) *Logger {
	return l.WithFields("bits", bits, "height", height)
}

// WithError returns a logger with error context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithFields("error", err.Error())
}

// Chain-following logging helpers

// LogBlockConnected logs a confirmed header being appended to the index
func (l *Logger) LogBlockConnected(hash string, height int64, bits uint32) {
	l.Info("block connected",
		"block_hash", hash,
		"block_height", height,
		"bits", bits,
	)
}

// LogTargetComputed logs a next-work computation result
func (l *Logger) LogTargetComputed(height int64, bits uint32, difficulty float64, retarget bool) {
	l.Info("next target computed",
		"height", height,
		"bits", bits,
		"difficulty", difficulty,
		"retarget", retarget,
	)
}

// LogRetarget logs a difficulty adjustment at a retarget boundary
func (l *Logger) LogRetarget(height int64, oldBits, newBits uint32, actualTimespan, targetTimespan int64) {
	l.Info("difficulty retarget",
		"height", height,
		"old_bits", oldBits,
		"new_bits", newBits,
		"actual_timespan", actualTimespan,
		"target_timespan", targetTimespan,
	)
}

// LogDuration logs the duration of an operation
func (l *Logger) LogDuration(operation string, duration int64) {
	l.Info("operation completed",
		"operation", operation,
		"duration_ns", duration,
		"duration_ms", float64(duration)/1e6,
	)
}

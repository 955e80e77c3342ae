package livre

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/JamesLinus/livre/lod"
	"github.com/JamesLinus/livre/render"
)

// Logger wraps slog.Logger with livre-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithNode adds a block identifier field to the logger.
func (l *Logger) WithNode(id lod.NodeID) *Logger {
	return &Logger{
		Logger: l.Logger.With("node", id.String()),
	}
}

// WithFrame adds a frame counter field to the logger.
func (l *Logger) WithFrame(frameID uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("frame", frameID),
	}
}

// WithCache adds a cache tier name field to the logger.
func (l *Logger) WithCache(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("cache", name),
	}
}

// LogDecode logs a block decode.
func (l *Logger) LogDecode(ctx context.Context, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "decode failed",
			"duration", duration,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "decode completed",
			"duration", duration,
		)
	}
}

// LogUpload logs a texture upload.
func (l *Logger) LogUpload(ctx context.Context, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "upload failed",
			"duration", duration,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "upload completed",
			"duration", duration,
		)
	}
}

// LogFrame logs a completed frame.
func (l *Logger) LogFrame(ctx context.Context, stats render.FrameStats, duration time.Duration) {
	if stats.Skipped > 0 {
		l.DebugContext(ctx, "frame incomplete",
			"frame", stats.FrameID,
			"requested", stats.Requested,
			"rendered", stats.Rendered,
			"skipped", stats.Skipped,
			"failed", stats.Failed,
			"duration", duration,
		)
	} else {
		l.DebugContext(ctx, "frame complete",
			"frame", stats.FrameID,
			"rendered", stats.Rendered,
			"duration", duration,
		)
	}
}

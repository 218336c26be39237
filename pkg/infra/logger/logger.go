// Package logger is dockman's structured log output. Every engine call logs
// through ForCall so its lines carry the request id and the operation name
// (container.stop, image.pull, ...) of the call that produced them.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Options select the log handler. Zero values mean warn level, text format
// and stderr.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

var current atomic.Pointer[slog.Logger]

// Setup replaces the process logger. An unknown level or format is an error
// and leaves the previous logger in place.
func Setup(o Options) error {
	level, err := ParseLevel(o.Level)
	if err != nil {
		return err
	}
	out := o.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(o.Format) {
	case "", "text":
		h = slog.NewTextHandler(out, opts)
	case "json":
		h = slog.NewJSONHandler(out, opts)
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", o.Format)
	}

	current.Store(slog.New(h))
	return nil
}

// ParseLevel maps a level name to its slog level. The empty name is warn,
// which keeps per-call debug lines off the terminal.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return slog.LevelWarn, nil
	case "warning":
		return slog.LevelWarn, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
	}
	return l, nil
}

// L returns the process logger, or slog's default before Setup.
func L() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	return slog.Default()
}

type ctxKey int

const (
	requestIDKey ctxKey = iota
	operationKey
)

// WithOperation names the engine call ctx belongs to.
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey, op)
}

// WithRequestID attaches the id sent as X-Request-Id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func Operation(ctx context.Context) string {
	op, _ := ctx.Value(operationKey).(string)
	return op
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ForCall returns the logger for the engine call in ctx.
func ForCall(ctx context.Context) *slog.Logger {
	l := L()
	if id := RequestID(ctx); id != "" {
		l = l.With("request_id", id)
	}
	if op := Operation(ctx); op != "" {
		l = l.With("operation", op)
	}
	return l
}

func Debug(msg string, args ...any) { L().Debug(msg, args...) }
func Info(msg string, args ...any)  { L().Info(msg, args...) }
func Warn(msg string, args ...any)  { L().Warn(msg, args...) }
func Error(msg string, args ...any) { L().Error(msg, args...) }

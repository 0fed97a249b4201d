// Package logging builds the process-wide [log/slog] logger used across
// progdex. The root command constructs one logger with [New] and stores it
// in the command context via [WithLogger]; everything downstream — ingest
// pipeline, query engine, store wiring — recovers it with [FromContext]
// instead of touching a global.
//
// Output goes to stderr so it never interleaves with command results on
// stdout. Two environment variables shape it:
//
//	LOG_LEVEL  = debug | info | warn | error  (default: info)
//	LOG_FORMAT = json | text                  (default: json)
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ctxKey struct{}

// New builds the logger from LOG_LEVEL and LOG_FORMAT, writing to stderr.
func New() *slog.Logger {
	return slog.New(newHandler(os.Stderr))
}

// newHandler picks JSON output unless LOG_FORMAT asks for text. Unknown
// formats fall back to JSON rather than erroring; a misconfigured logger
// should never stop a command from running.
func newHandler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(os.Getenv("LOG_LEVEL"))}
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// WithLogger returns a child context carrying log.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// FromContext recovers the logger placed by [WithLogger]. A context without
// one yields [slog.Default], so call sites never nil-check.
func FromContext(ctx context.Context) *slog.Logger {
	if log, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && log != nil {
		return log
	}
	return slog.Default()
}

// parseLevel maps a LOG_LEVEL value to a [slog.Level]. Empty or unknown
// values mean info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

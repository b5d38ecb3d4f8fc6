package internal

import (
	"io"
	"log/slog"
	"time"
)

// NewLogger builds the process logger: human-readable text in dev, JSON in
// prod with RFC3339Nano timestamps so webhook and payment log lines can be
// correlated against the gateway's own records.
func NewLogger(w io.Writer, env string, level string) *slog.Logger {
	lvl := new(slog.LevelVar) // info unless told otherwise
	switch level {
	case "debug":
		lvl.Set(slog.LevelDebug)
	case "warn":
		lvl.Set(slog.LevelWarn)
	case "error":
		lvl.Set(slog.LevelError)
	case "info", "":
	default:
		slog.Default().Warn("Invalid log level. Using default level: info", slog.String("value", level))
	}

	if env != "prod" {
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("time", a.Value.Time().Format(time.RFC3339Nano))
			}
			return a
		},
	})
	return slog.New(h)
}

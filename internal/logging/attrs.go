package logging

import (
	"context"
	"log/slog"
	"time"
)

type Attr = slog.Attr

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Float64(key string, value float64) Attr { return slog.Float64(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

// TrackURI tags a record with the track it concerns.
func TrackURI(uri string) Attr { return slog.String(FieldTrackURI, uri) }

// Error records err under "error". A nil error is logged as "<nil>" so a
// missing cause is visible.
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Args converts attributes into the variadic form slog methods accept.
func Args(attrs ...Attr) []any {
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	return args
}

func NewNop() *slog.Logger {
	return slog.New(discardHandler{})
}

// NewComponentLogger tags logger with a component name. A nil logger
// discards everything.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// Fallbacks for the fields operators filter warnings and errors on.
const (
	defaultHint   = `set logging.level = "debug" for details`
	defaultImpact = "the run continues with the next track"
)

// annotate returns attrs with event_type and any missing fallback fields
// appended. Caller-supplied values always win.
func annotate(attrs []Attr, eventType string, fallbacks ...Attr) []any {
	seen := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		seen[a.Key] = true
	}
	out := Args(attrs...)
	if !seen[FieldEventType] {
		out = append(out, String(FieldEventType, eventType))
	}
	for _, f := range fallbacks {
		if !seen[f.Key] {
			out = append(out, f)
		}
	}
	return out
}

// WarnWithContext logs a warning that always carries event_type, error_hint
// and impact.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	logger.Warn(msg, annotate(attrs, eventType,
		String(FieldErrorHint, defaultHint),
		String(FieldImpact, defaultImpact),
	)...)
}

// ErrorWithContext logs an error that always carries event_type and
// error_hint.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	logger.Error(msg, annotate(attrs, eventType, String(FieldErrorHint, defaultHint))...)
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool { return false }

func (discardHandler) Handle(context.Context, slog.Record) error { return nil }

func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h discardHandler) WithGroup(string) slog.Handler { return h }

package logging

import (
	"context"
	"log/slog"

	"spotrip/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID identifies one invocation of the engine.
	FieldRunID = "run_id"
	// FieldTrackURI is the opaque track identifier.
	FieldTrackURI = "track_uri"
	// FieldTrackIndex is the 1-based position of a track within the run.
	FieldTrackIndex = "track_index"
	// FieldState is the track lifecycle state.
	FieldState = "state"
	// FieldStage names the pipeline step that produced the record.
	FieldStage = "stage"
	// FieldEventType classifies a record for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to try next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if uri, ok := services.TrackURIFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldTrackURI, uri))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}

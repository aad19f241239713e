package services

import "context"

type contextKey string

const (
	runIDKey    contextKey = "run_id"
	trackURIKey contextKey = "track_uri"
	stageKey    contextKey = "stage"
)

// WithRunID annotates context with the engine run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithTrackURI annotates context with the track being processed.
func WithTrackURI(ctx context.Context, uri string) context.Context {
	if uri == "" {
		return ctx
	}
	return context.WithValue(ctx, trackURIKey, uri)
}

// TrackURIFromContext returns the track URI if present.
func TrackURIFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(trackURIKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(stageKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

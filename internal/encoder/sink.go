package encoder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"spotrip/internal/config"
	"spotrip/internal/deps"
	"spotrip/internal/fileutil"
	"spotrip/internal/logging"
	"spotrip/internal/services"
)

// Sink consumes PCM for one track.
type Sink interface {
	// Write forwards one chunk. It may block until the consumer catches up.
	Write(chunk []byte) error
	// Finish closes the input, waits for completion and verifies the output.
	// The partial file is removed on failure and renamed into place on success.
	Finish() (Result, error)
	// Abort stops the sink and removes the partial output. Safe to call more
	// than once and after Finish.
	Abort() error
}

// Result describes a verified output file.
type Result struct {
	Path     string
	Bytes    int64
	Frames   int64
	Duration time.Duration
}

// Factory opens sinks for the configured output format.
type Factory struct {
	encoding config.Encoding
	binary   string
	grace    time.Duration
	logger   *slog.Logger
}

// NewFactory resolves the encoder binary once. A missing binary is reported
// as ErrEncoderSpawn so the run stops before any track is attempted.
func NewFactory(cfg *config.Config, logger *slog.Logger) (*Factory, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "encoder", "init", "config is nil", nil)
	}
	f := &Factory{
		encoding: cfg.Encoding,
		grace:    time.Duration(cfg.Engine.EncoderGraceSeconds) * time.Second,
		logger:   logging.NewComponentLogger(logger, "encoder"),
	}
	if f.grace <= 0 {
		f.grace = 3 * time.Second
	}
	if !cfg.Encoding.UsesEncoder() {
		return f, nil
	}
	status := deps.ResolveEncoder(cfg.Encoding.Format, cfg.Encoding.EncoderBinary)
	if !status.Available {
		msg := fmt.Sprintf("Missing dependency '%s'. Please install and add to path", status.Command)
		if hint := deps.InstallHint(status.Package); hint != "" {
			msg += " (" + hint + ")"
		}
		return nil, services.Wrap(services.ErrEncoderSpawn, "encoder", "resolve", msg, nil)
	}
	f.binary = status.Path
	return f, nil
}

// Binary returns the resolved encoder path, or "" for direct writers.
func (f *Factory) Binary() string {
	return f.binary
}

// Extension returns the output file extension for the configured format.
func (f *Factory) Extension() string {
	return f.encoding.Extension()
}

// OpenOption adjusts a single Open call.
type OpenOption func(*openOptions)

type openOptions struct {
	tags Tags
}

// WithTags passes metadata to encoders that write tags during encoding.
func WithTags(tags Tags) OpenOption {
	return func(o *openOptions) { o.tags = tags }
}

// Open starts a sink that will produce path. Any stale partial output from an
// earlier run is removed first.
func (f *Factory) Open(ctx context.Context, path string, opts ...OpenOption) (Sink, error) {
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}
	if strings.TrimSpace(path) == "" {
		return nil, services.Wrap(services.ErrValidation, "encoder", "open", "output path is empty", nil)
	}
	if err := fileutil.EnsureParent(path); err != nil {
		return nil, services.Wrap(services.ErrEncoderSpawn, "encoder", "open", "create output directory", err)
	}
	partial := PartialPath(path)
	if _, err := fileutil.RemoveIfExists(partial); err != nil {
		return nil, services.Wrap(services.ErrEncoderSpawn, "encoder", "open", "remove stale partial", err)
	}
	logger := logging.WithContext(ctx, f.logger)

	switch f.encoding.Format {
	case config.FormatWAV:
		return openFileSink(path, true, logger)
	case config.FormatPCM:
		return openFileSink(path, false, logger)
	}

	args, err := BuildTaggedArgs(f.encoding, partial, o.tags)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "encoder", "args", "", err)
	}
	return startProcessSink(ctx, f.binary, args, path, f.grace, logger)
}

package postactions

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"spotrip/internal/config"
	"spotrip/internal/encoder"
	"spotrip/internal/fileutil"
	"spotrip/internal/logging"
	"spotrip/internal/services"
	"spotrip/internal/session"
	"spotrip/internal/textutil"
	"spotrip/internal/track"
)

// Playlists is the part of a session the playlist actions need.
type Playlists interface {
	User() string
	OwnsPlaylist(src session.Source) bool
	RemoveFromPlaylist(ctx context.Context, playlistURI string, indices []int) error
}

// Actions owns the per-run post-action state.
type Actions struct {
	mu        sync.Mutex
	cfg       *config.Config
	playlists Playlists
	logger    *slog.Logger

	failLogPath string
	failLog     *os.File
	failWriter  *bufio.Writer

	success  []*track.Track
	failure  []*track.Track
	// pending playlist removals keyed by playlist URI, in queue order
	removals []*removal
}

// New opens the fail log when one is configured.
func New(cfg *config.Config, playlists Playlists, logger *slog.Logger) (*Actions, error) {
	a := &Actions{
		cfg:       cfg,
		playlists: playlists,
		logger:    logging.NewComponentLogger(logger, "postactions"),
	}
	if path := cfg.FailLogPath(); path != "" {
		if err := fileutil.EnsureParent(path); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "postactions", "fail log", path, err)
		}
		file, err := os.Create(path)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "postactions", "fail log", path, err)
		}
		a.failLogPath = path
		a.failLog = file
		a.failWriter = bufio.NewWriter(file)
	}
	return a, nil
}

type removal struct {
	src     *session.Source
	indices []int
}

// LogSuccess records t for the summary.
func (a *Actions) LogSuccess(t *track.Track) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.success = append(a.success, t)
}

// LogFailure records t for the summary and appends its URI to the fail log.
func (a *Actions) LogFailure(t *track.Track) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failure = append(a.failure, t)
	if a.failWriter == nil {
		return
	}
	line := textutil.FoldIf(a.cfg.Output.ASCII, t.URI) + "\n"
	if _, err := a.failWriter.WriteString(line); err != nil {
		a.logger.Warn("fail log write failed",
			logging.String(logging.FieldEventType, "fail_log_write_failed"),
			logging.String(logging.FieldErrorHint, "check free space in the output directory"),
			logging.Error(err),
		)
	}
}

// Successes returns the tracks logged as ripped.
func (a *Actions) Successes() []*track.Track {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*track.Track(nil), a.success...)
}

// Failures returns the tracks logged as failed.
func (a *Actions) Failures() []*track.Track {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*track.Track(nil), a.failure...)
}

// CleanUpPartial removes the in-progress output that belongs to path. A
// finished file at path is left alone, and missing files are not an error,
// so repeated calls are harmless.
func (a *Actions) CleanUpPartial(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	partial := path
	if !encoder.IsPartialPath(path) {
		partial = encoder.PartialPath(path)
	}
	removed, err := fileutil.RemoveIfExists(partial)
	if err != nil {
		return false, fmt.Errorf("remove partial %s: %w", partial, err)
	}
	if removed {
		a.logger.Info("deleted partially ripped file", logging.String("path", partial))
	}
	return removed, nil
}

// EndFailureLog flushes and closes the fail log, deleting it when nothing
// failed. Safe to call more than once.
func (a *Actions) EndFailureLog() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failLog == nil {
		return nil
	}
	file, writer, path := a.failLog, a.failWriter, a.failLogPath
	a.failLog, a.failWriter = nil, nil

	flushErr := writer.Flush()
	syncErr := file.Sync()
	closeErr := file.Close()
	for _, err := range []error{flushErr, syncErr, closeErr} {
		if err != nil {
			return fmt.Errorf("close fail log: %w", err)
		}
	}
	if fileutil.Size(path) == 0 {
		if _, err := fileutil.RemoveIfExists(path); err != nil {
			return fmt.Errorf("remove empty fail log: %w", err)
		}
	}
	return nil
}

package ripping

import (
	"context"
	"time"

	"github.com/samber/lo"

	"spotrip/internal/history"
	"spotrip/internal/logging"
	"spotrip/internal/notifications"
	"spotrip/internal/session"
	"spotrip/internal/track"
)

const finalizeTimeout = 2 * time.Minute

// finalize runs the post actions once every attempted track is terminal. It
// runs after Abort too, on a context detached from the run's cancellation.
func (e *Engine) finalize(runCtx context.Context, started time.Time, runErr error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), finalizeTimeout)
	defer cancel()
	logger := logging.WithContext(ctx, e.logger)

	e.reporter.Close()

	if err := e.actions.EndFailureLog(); err != nil {
		logging.WarnWithContext(logger, "fail log not closed cleanly", "fail_log_failed", logging.Error(err))
	}

	e.mu.Lock()
	sources := e.sources
	items := e.items
	e.mu.Unlock()

	for _, src := range sources {
		if !src.IsPlaylist() {
			continue
		}
		tracks := tracksOf(items, src)
		if _, err := e.actions.CreatePlaylistFiles(*src, tracks); err != nil {
			logging.WarnWithContext(logger, "playlist files not written", "playlist_file_failed",
				logging.String("playlist", src.Name),
				logging.Error(err),
			)
		}
		e.syncPlaylist(ctx, src, tracks)
	}

	if err := e.actions.RemoveTracksFromPlaylist(ctx); err != nil {
		logging.WarnWithContext(logger, "tracks not removed from playlist", "playlist_remove_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "ripped tracks stay in the playlist"),
		)
	}

	e.actions.PrintSummary(e.stdout)

	tracks := lo.Map(items, func(it *item, _ int) *track.Track { return it.track })
	summary := summarize(tracks)
	summary.RunID = e.runID
	summary.Duration = time.Since(started)

	if e.history != nil {
		run := history.Run{
			ID:        e.runID,
			Succeeded: summary.Succeeded,
			Failed:    summary.Failed,
			Aborted:   summary.Aborted,
			Skipped:   summary.Skipped,
		}
		if runErr != nil {
			run.ErrorMessage = runErr.Error()
		}
		if err := e.history.FinishRun(ctx, run); err != nil {
			logging.WarnWithContext(logger, "run not finished in history", "history_write_failed", logging.Error(err))
		}
	}

	if runErr != nil {
		e.publish(ctx, notifications.EventError, notifications.Payload{
			"context": "rip",
			"error":   runErr,
		})
	}
	aborted := summary.Aborted
	if e.aborted.Load() && aborted == 0 {
		aborted = summary.NotAttempted
	}
	e.publish(ctx, notifications.EventRunCompleted, notifications.Payload{
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"aborted":   aborted,
		"duration":  summary.Duration,
	})

	logger.Info("rip finished",
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("failed", summary.Failed),
		logging.Int("aborted", summary.Aborted),
		logging.Int("skipped", summary.Skipped),
		logging.Int("not_attempted", summary.NotAttempted),
		logging.Duration("duration", summary.Duration),
	)

	e.mu.Lock()
	e.summary = summary
	e.runErr = runErr
	e.mu.Unlock()
}

// syncPlaylist removes files an earlier rip of src produced that this run
// no longer lists.
func (e *Engine) syncPlaylist(ctx context.Context, src *session.Source, tracks []*track.Track) {
	if !e.cfg.Playlist.Sync || e.history == nil {
		return
	}
	logger := logging.WithContext(ctx, e.logger)
	previous, err := e.history.SourceFiles(ctx, src.URI, e.runID)
	if err != nil {
		logging.WarnWithContext(logger, "playlist sync skipped", "playlist_sync_failed", logging.Error(err))
		return
	}
	// Files of tracks that did not finish this time are left alone.
	current := make(map[string]string, len(tracks))
	for _, t := range tracks {
		switch t.State() {
		case track.StateSucceeded, track.StateSkipped:
			current[t.URI] = t.OutputPath
		case track.StatePending, track.StateFailed, track.StateAborted:
			if path, ok := previous[t.URI]; ok {
				current[t.URI] = path
			}
		}
	}
	removed, err := e.actions.SyncPlaylist(previous, current)
	if err != nil {
		logging.WarnWithContext(logger, "playlist sync incomplete", "playlist_sync_failed", logging.Error(err))
	}
	if len(removed) > 0 {
		logger.Info("playlist synced", logging.String("playlist", src.Name), logging.Int("removed", len(removed)))
	}
}

func tracksOf(items []*item, src *session.Source) []*track.Track {
	return lo.FilterMap(items, func(it *item, _ int) (*track.Track, bool) {
		return it.track, it.source == src
	})
}

func summarize(tracks []*track.Track) Summary {
	count := func(state track.State) int {
		return lo.CountBy(tracks, func(t *track.Track) bool { return t.State() == state })
	}
	return Summary{
		Total:        len(tracks),
		Succeeded:    count(track.StateSucceeded),
		Failed:       count(track.StateFailed),
		Aborted:      count(track.StateAborted),
		Skipped:      count(track.StateSkipped),
		NotAttempted: count(track.StatePending),
	}
}

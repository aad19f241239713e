package ripping

import (
	"context"
	"errors"
	"io"
	"time"

	"spotrip/internal/encoder"
	"spotrip/internal/fileutil"
	"spotrip/internal/framebuf"
	"spotrip/internal/history"
	"spotrip/internal/logging"
	"spotrip/internal/notifications"
	"spotrip/internal/pathfmt"
	"spotrip/internal/services"
	"spotrip/internal/track"
)

const (
	// drainChunkBytes is how much PCM one pull hands to the encoder.
	drainChunkBytes = 4096 * framebuf.FrameSize
	prebufferPoll   = 10 * time.Millisecond
)

// processTrack drives one track to a terminal state. Only errors that must
// stop the whole queue are returned.
func (e *Engine) processTrack(ctx context.Context, it *item) error {
	t := it.track
	ctx = services.WithTrackURI(ctx, t.URI)
	logger := logging.WithContext(ctx, e.logger)
	defer e.trackFinished(ctx, it)

	for {
		err := e.attempt(ctx, it)
		if err == nil {
			return nil
		}

		switch {
		case e.aborted.Load() || ctx.Err() != nil || errors.Is(err, services.ErrAborted):
			e.abortTrack(ctx, t)
			return nil

		case services.IsFatal(err):
			e.failTrack(ctx, t, err)
			logging.ErrorWithContext(logger, "rip stopped", "run_stopped",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, errorHint(err)),
			)
			return err

		case services.IsRetryable(err) && t.Retry(err, e.cfg.Engine.TransientRetries) == nil:
			e.cleanUp(ctx, t)
			backoff := time.Duration(e.cfg.Engine.RetryBackoffMillis) * time.Millisecond
			logging.WarnWithContext(logger, "transient delivery error, retrying track", "track_retry",
				logging.Error(err),
				logging.Int("attempt", t.Attempts()),
				logging.Duration("backoff", backoff),
				logging.String(logging.FieldImpact, "track restarts from the beginning"),
			)
			if !e.sleep(ctx, backoff) {
				e.abortTrack(ctx, t)
				return nil
			}

		default:
			e.failTrack(ctx, t, err)
			return nil
		}
	}
}

// attempt runs one pass from RESOLVING to SUCCEEDED or SKIPPED.
func (e *Engine) attempt(ctx context.Context, it *item) error {
	t := it.track
	logger := logging.WithContext(ctx, e.logger)

	if t.State() == track.StatePending {
		if err := t.Transition(track.StateResolving); err != nil {
			return err
		}
	}

	meta, err := e.session.Resolve(ctx, t.URI)
	if err != nil {
		return classify(err, services.ErrTrackUnavailable, "resolve", t.URI)
	}
	t.SetResolved(meta)

	path, err := e.renderer.Path(pathfmt.Input{URI: t.URI, Index: t.Index, Metadata: meta})
	if err != nil {
		return err
	}
	t.OutputPath = path

	if reason, existing := e.skipReason(ctx, t); reason != "" {
		if existing != "" {
			t.OutputPath = existing
		}
		logger.Info("skipping track",
			logging.String("track", t.Label()),
			logging.String("reason", reason),
			logging.String("path", t.OutputPath),
		)
		return t.Skip(reason)
	}

	if err := t.Transition(track.StateBuffering); err != nil {
		return err
	}
	tags := encoder.TagsFrom(meta, e.cfg.Output.Comment, e.cfg.ASCIITags())
	sink, err := e.encoders.Open(ctx, path, encoder.WithTags(tags))
	if err != nil {
		return err
	}
	finished := false
	defer func() {
		if !finished {
			if abortErr := sink.Abort(); abortErr != nil {
				logger.Debug("encoder abort failed", logging.Error(abortErr))
			}
		}
	}()

	buf := framebuf.New(e.cfg.Engine.BufferBytes, e.cfg.Engine.LowWaterPercent)
	h := newDeliveryHandler(buf, &e.aborted)
	if err := e.session.BeginDelivery(ctx, t.URI, h); err != nil {
		return classify(err, services.ErrTransientDelivery, "begin delivery", t.URI)
	}
	defer e.session.StopDelivery()

	logger.Info("ripping track",
		logging.String("track", t.Label()),
		logging.String("path", path),
		logging.Int("attempt", t.Attempts()),
	)

	if err := e.prebuffer(ctx, buf, h); err != nil {
		return err
	}
	if err := t.Transition(track.StateStreaming); err != nil {
		return err
	}
	e.reporter.Begin(t)

	if err := e.drain(ctx, t, buf, h, sink); err != nil {
		return err
	}
	if e.aborted.Load() {
		return abortError(ctx, t.URI)
	}

	if err := t.Transition(track.StateFinalizing); err != nil {
		return err
	}
	e.session.StopDelivery()
	finished = true
	result, err := sink.Finish()
	if err != nil {
		return err
	}
	frames, _ := t.Progress()
	logger.Info("track encoded",
		logging.String("path", result.Path),
		logging.Int64("bytes", result.Bytes),
		logging.Int64("frames", frames),
		logging.Duration("duration", result.Duration),
	)

	e.tag(ctx, t, result.Path)
	return t.Transition(track.StateSucceeded)
}

// prebuffer waits until the buffer holds the configured share of its
// capacity, or the stream already ended.
func (e *Engine) prebuffer(ctx context.Context, buf *framebuf.Buffer, h *deliveryHandler) error {
	want := buf.Cap() * e.cfg.Engine.PrebufferPercent / 100
	ticker := time.NewTicker(prebufferPoll)
	defer ticker.Stop()
	for buf.Len() < want && !buf.Ended() && !buf.IsFull() {
		if e.aborted.Load() {
			return abortError(ctx, "")
		}
		if err := h.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return abortError(ctx, "")
		case <-ticker.C:
		}
	}
	return nil
}

// drain pulls frames into the sink until the stream ends. The abort flag,
// the run context and the handler's error are checked whenever a pull times
// out, so an abort is noticed within one pull timeout.
func (e *Engine) drain(ctx context.Context, t *track.Track, buf *framebuf.Buffer, h *deliveryHandler, sink encoder.Sink) error {
	timeout := time.Duration(e.cfg.Engine.PullTimeoutMillis) * time.Millisecond
	for {
		if e.aborted.Load() || ctx.Err() != nil {
			return abortError(ctx, t.URI)
		}
		data, err := buf.Pull(drainChunkBytes, timeout)
		if errors.Is(err, io.EOF) {
			return h.Err()
		}
		if err != nil {
			return err
		}
		if data == nil {
			if herr := h.Err(); herr != nil {
				return herr
			}
			continue
		}
		if err := sink.Write(data); err != nil {
			return err
		}
		frames := t.AddFrames(len(data) / framebuf.FrameSize)
		e.reporter.Update(t.URI, frames)
	}
}

// skipReason reports why t need not be ripped. existing is set when the
// finished file lives somewhere other than the rendered path.
func (e *Engine) skipReason(ctx context.Context, t *track.Track) (reason, existing string) {
	if !e.cfg.Output.Overwrite && fileutil.Exists(t.OutputPath) {
		return "output already exists", ""
	}
	if !e.cfg.Engine.SkipRipped || e.history == nil {
		return "", ""
	}
	prev, err := e.history.LastSuccess(ctx, t.URI)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, e.logger), "history lookup failed", "history_read_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "track is ripped again"),
		)
		return "", ""
	}
	if prev == nil || !fileutil.Exists(prev.OutputPath) {
		return "", ""
	}
	return "already ripped", prev.OutputPath
}

// tag downloads cover art and writes tags. Failures are logged and the
// track still succeeds.
func (e *Engine) tag(ctx context.Context, t *track.Track, path string) {
	logger := logging.WithContext(ctx, e.logger)
	meta := t.Metadata
	cover, err := e.covers.Fetch(ctx, meta.CoverURL)
	if err != nil {
		logging.WarnWithContext(logger, "cover art not downloaded", "cover_fetch_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "track is tagged without cover art"),
		)
		cover = nil
	}
	if err := e.tagger.WriteTags(ctx, path, meta, cover, e.cfg.ASCIITags()); err != nil {
		logging.WarnWithContext(logger, "tags not written", "tagging_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "audio file kept without complete tags"),
		)
	}
}

func (e *Engine) abortTrack(ctx context.Context, t *track.Track) {
	if !t.State().IsTerminal() && t.State() != track.StatePending {
		if err := t.Abort(abortError(ctx, t.URI)); err != nil {
			e.logger.Debug("abort transition refused", logging.Error(err))
		}
	}
	e.cleanUp(ctx, t)
}

func (e *Engine) failTrack(ctx context.Context, t *track.Track, cause error) {
	logger := logging.WithContext(ctx, e.logger)
	if err := t.Fail(cause); err != nil {
		logger.Debug("fail transition refused", logging.Error(err))
	}
	e.cleanUp(ctx, t)
	e.actions.LogFailure(t)
	logging.WarnWithContext(logger, "track failed", "track_failed",
		logging.String("track", t.Label()),
		logging.String("kind", services.Kind(cause)),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, errorHint(cause)),
		logging.String(logging.FieldImpact, "track skipped, queue continues"),
	)
	e.publish(ctx, notifications.EventTrackFailed, notifications.Payload{
		"track": t.Label(),
		"error": cause,
	})
}

// cleanUp removes any partial output left by the last attempt.
func (e *Engine) cleanUp(ctx context.Context, t *track.Track) {
	if t.OutputPath == "" {
		return
	}
	if _, err := e.actions.CleanUpPartial(t.OutputPath); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, e.logger), "partial output not removed", "cleanup_failed",
			logging.String("path", t.OutputPath),
			logging.Error(err),
		)
	}
}

// trackFinished reports the outcome of a track that reached a terminal state.
func (e *Engine) trackFinished(ctx context.Context, it *item) {
	t := it.track
	state := t.State()
	if !state.IsTerminal() {
		return
	}
	e.reporter.TrackDone(t.URI, state)

	switch state {
	case track.StateSucceeded:
		e.actions.LogSuccess(t)
		e.actions.QueueRemoveFromPlaylist(it.source, t.Index)
	case track.StateSkipped:
		e.actions.LogSuccess(t)
	}

	frames, _ := t.Progress()
	logging.WithContext(ctx, e.logger).Info("track finished",
		logging.String("track", t.Label()),
		logging.String(logging.FieldState, string(state)),
		logging.Int("attempts", t.Attempts()),
		logging.Int64("frames", frames),
		logging.Duration("elapsed", t.Elapsed()),
	)

	if e.history == nil {
		return
	}
	outcome := history.Outcome{
		RunID:      e.runID,
		TrackURI:   t.URI,
		Position:   t.Index,
		State:      state,
		OutputPath: t.OutputPath,
		Artist:     t.Metadata.Artist(),
		Title:      t.Metadata.Title,
		Attempts:   t.Attempts(),
	}
	if it.source != nil {
		outcome.SourceURI = it.source.URI
	}
	if err := t.Err(); err != nil && state != track.StateSucceeded {
		outcome.ErrorMessage = err.Error()
	}
	if err := e.history.RecordOutcome(context.WithoutCancel(ctx), outcome); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, e.logger), "outcome not recorded in history", "history_write_failed",
			logging.Error(err),
		)
	}
}

// sleep waits for d and reports false when the run was aborted meanwhile.
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !e.aborted.Load() && ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return !e.aborted.Load()
	}
}

// classify tags err with marker unless it already carries a known kind.
func classify(err, marker error, op, uri string) error {
	for _, known := range []error{
		services.ErrAuth, services.ErrTrackUnavailable, services.ErrTransientDelivery,
		services.ErrEncoderSpawn, services.ErrEncoderRuntime, services.ErrAborted,
		services.ErrConfiguration, services.ErrValidation,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return services.Wrap(marker, "engine", op, uri, err)
}

func abortError(ctx context.Context, uri string) error {
	return services.Wrap(services.ErrAborted, "engine", "stream", uri, context.Cause(ctx))
}

func errorHint(err error) string {
	switch services.Kind(err) {
	case "auth":
		return "log in again or check the stored credentials"
	case "encoder_spawn":
		return "install the encoder for the selected format"
	case "encoder":
		return "check the encoder output in the debug log"
	case "unavailable":
		return "the track is not playable in this market"
	case "transient":
		return "check the network connection and the PCM helper"
	case "configuration":
		return "run spotrip config validate"
	default:
		return "check logs for details"
	}
}

package ripping

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"spotrip/internal/config"
	"spotrip/internal/encoder"
	"spotrip/internal/history"
	"spotrip/internal/logging"
	"spotrip/internal/notifications"
	"spotrip/internal/pathfmt"
	"spotrip/internal/postactions"
	"spotrip/internal/progress"
	"spotrip/internal/services"
	"spotrip/internal/session"
	"spotrip/internal/tagging"
	"spotrip/internal/track"
)

// Encoders opens one sink per track.
type Encoders interface {
	Open(ctx context.Context, path string, opts ...encoder.OpenOption) (encoder.Sink, error)
}

// CoverSource downloads album art.
type CoverSource interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Reporter receives progress for the track in flight and the run as a whole.
type Reporter interface {
	SetTotal(n int)
	Begin(t *track.Track)
	Update(uri string, framesDelivered int64)
	TrackDone(uri string, outcome track.State)
	Close()
}

// Dependencies are the collaborators of an Engine. Session is required;
// everything else falls back to the default built from the config.
type Dependencies struct {
	Session  session.Session
	Encoders Encoders
	Tagger   tagging.Writer
	Covers   CoverSource
	History  *history.Store
	Notifier notifications.Service
	Reporter Reporter
	// Stdout receives the end-of-run summary.
	Stdout io.Writer
	Logger *slog.Logger
}

// Summary describes a finished run.
type Summary struct {
	RunID        string
	Total        int
	Succeeded    int
	Failed       int
	Aborted      int
	Skipped      int
	NotAttempted int
	Duration     time.Duration
}

// Engine sequences the rip of a queue of tracks. It is single-use: Start may
// be called once per Engine.
type Engine struct {
	cfg      *config.Config
	session  session.Session
	encoders Encoders
	tagger   tagging.Writer
	covers   CoverSource
	history  *history.Store
	notifier notifications.Service
	reporter Reporter
	stdout   io.Writer
	renderer *pathfmt.Renderer
	logger   *slog.Logger

	aborted atomic.Bool

	mu       sync.Mutex
	loggedIn bool
	started  bool
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	runID    string
	actions  *postactions.Actions
	sources  []*session.Source
	items    []*item
	summary  Summary
	runErr   error
}

// item is one queued track together with the source it was expanded from.
type item struct {
	track  *track.Track
	source *session.Source
}

// New validates the output template and resolves the encoder. A missing
// encoder binary is returned as ErrEncoderSpawn so no track is attempted.
func New(cfg *config.Config, deps Dependencies) (*Engine, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "engine", "init", "config is nil", nil)
	}
	if deps.Session == nil {
		return nil, services.Wrap(services.ErrConfiguration, "engine", "init", "session is required", nil)
	}
	if err := pathfmt.Validate(cfg.FormatTemplate()); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &Engine{
		cfg:      cfg,
		session:  deps.Session,
		encoders: deps.Encoders,
		tagger:   deps.Tagger,
		covers:   deps.Covers,
		history:  deps.History,
		notifier: deps.Notifier,
		reporter: deps.Reporter,
		stdout:   deps.Stdout,
		renderer: pathfmt.New(cfg),
		logger:   logging.NewComponentLogger(logger, "engine"),
	}
	if e.encoders == nil {
		factory, err := encoder.NewFactory(cfg, logger)
		if err != nil {
			return nil, err
		}
		e.encoders = factory
	}
	if e.tagger == nil {
		e.tagger = tagging.New(cfg, logger)
	}
	if e.covers == nil {
		e.covers = tagging.NewCoverFetcher(nil)
	}
	if e.notifier == nil {
		e.notifier = notifications.NewService(cfg)
	}
	if e.stdout == nil {
		e.stdout = os.Stdout
	}
	if e.reporter == nil {
		e.reporter = progress.New(progress.Options{Writer: e.stdout, Logger: logger})
	}
	return e, nil
}

// Login authenticates the session on the caller's goroutine.
func (e *Engine) Login(ctx context.Context, creds session.Credentials) error {
	if err := e.session.Login(ctx, creds); err != nil {
		if !errors.Is(err, services.ErrAuth) {
			err = services.Wrap(services.ErrAuth, "engine", "login", creds.User, err)
		}
		logging.ErrorWithContext(e.logger, "login failed", "login_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the user name, password and client credentials"),
		)
		return err
	}
	e.mu.Lock()
	e.loggedIn = true
	e.mu.Unlock()
	e.logger.Info("logged in", logging.String("user", e.session.User()))
	return nil
}

// Start launches the engine goroutine for uris and returns immediately.
func (e *Engine) Start(ctx context.Context, uris []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loggedIn {
		return services.Wrap(services.ErrAuth, "engine", "start", "not logged in", nil)
	}
	if e.started {
		return services.Wrap(services.ErrValidation, "engine", "start", "engine already started", nil)
	}
	if len(lo.Compact(uris)) == 0 {
		return services.Wrap(services.ErrValidation, "engine", "start", "no URIs given", nil)
	}

	actions, err := postactions.New(e.cfg, e.session, e.logger)
	if err != nil {
		return err
	}

	e.runID = uuid.NewString()
	runCtx, cancel := context.WithCancel(services.WithRunID(ctx, e.runID))
	e.actions = actions
	e.cancel = cancel
	e.done = make(chan struct{})
	e.started = true
	e.running = true

	go e.run(runCtx, append([]string(nil), uris...))
	return nil
}

// Abort stops the run. The track in flight is aborted and no further track
// leaves PENDING; finalisation still runs for what completed.
func (e *Engine) Abort() {
	if e.aborted.Swap(true) {
		return
	}
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	e.logger.Info("abort requested")
	if cancel != nil {
		cancel()
	}
}

// Join waits for the run to finish and returns its summary together with the
// error that stopped the queue, if any.
func (e *Engine) Join() (Summary, error) {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return Summary{}, services.Wrap(services.ErrValidation, "engine", "join", "engine not started", nil)
	}
	<-done

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary, e.runErr
}

// IsRunning reports whether the engine goroutine is active.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Tracks returns the queued tracks in processing order.
func (e *Engine) Tracks() []*track.Track {
	e.mu.Lock()
	defer e.mu.Unlock()
	return lo.Map(e.items, func(it *item, _ int) *track.Track { return it.track })
}

// RunID returns the identifier of the started run.
func (e *Engine) RunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}

func (e *Engine) run(ctx context.Context, uris []string) {
	started := time.Now()
	logger := logging.WithContext(ctx, e.logger)
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		close(e.done)
	}()

	if e.history != nil {
		run := history.Run{ID: e.runID, Sources: uris, Format: e.cfg.Encoding.Format, StartedAt: started}
		if err := e.history.BeginRun(ctx, run); err != nil {
			logging.WarnWithContext(logger, "run not recorded in history", "history_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "skip-ripped and playlist sync will not see this run"),
			)
		}
	}

	runErr := e.queue(ctx, uris)
	e.finalize(ctx, started, runErr)
}

// queue expands uris and processes the tracks in order. It returns the error
// that stopped the queue early, if any.
func (e *Engine) queue(ctx context.Context, uris []string) error {
	logger := logging.WithContext(ctx, e.logger)

	sources, items, err := e.expand(ctx, uris)
	e.mu.Lock()
	e.sources = sources
	e.items = items
	e.mu.Unlock()
	if err != nil {
		return err
	}

	e.reporter.SetTotal(len(items))
	logger.Info("rip queue ready",
		logging.Int("tracks", len(items)),
		logging.Int("sources", len(sources)),
	)
	sourceName := ""
	if len(sources) > 0 {
		sourceName = sources[0].Name
	}
	e.publish(ctx, notifications.EventRunStarted, notifications.Payload{
		"count":  len(items),
		"source": sourceName,
	})

	for _, it := range items {
		if e.aborted.Load() || ctx.Err() != nil {
			break
		}
		if err := e.processTrack(ctx, it); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, e.logger), "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
		)
	}
}

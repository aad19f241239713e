package ripping_test

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"spotrip/internal/config"
	"spotrip/internal/encoder"
	"spotrip/internal/logging"
	"spotrip/internal/notifications"
	"spotrip/internal/progress"
	"spotrip/internal/ripping"
	"spotrip/internal/services"
	"spotrip/internal/session"
	"spotrip/internal/testsupport"
	"spotrip/internal/track"
)

type recordingTagger struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (r *recordingTagger) WriteTags(_ context.Context, path string, _ track.Metadata, _ []byte, _ bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return r.err
}

type noCovers struct{}

func (noCovers) Fetch(context.Context, string) ([]byte, error) { return nil, nil }

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	last   map[notifications.Event]notifications.Payload
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		r.last = map[notifications.Event]notifications.Payload{}
	}
	r.events = append(r.events, event)
	r.last[event] = payload
	return nil
}

func (r *recordingNotifier) payload(event notifications.Event) notifications.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last[event]
}

type harness struct {
	cfg      *config.Config
	session  *fakeSession
	engine   *ripping.Engine
	tagger   *recordingTagger
	notifier *recordingNotifier
	reporter *progress.Reporter
	stdout   *bytes.Buffer
}

func newHarness(t *testing.T, cfg *config.Config, sess *fakeSession, mutate ...func(*ripping.Dependencies)) *harness {
	t.Helper()
	h := &harness{
		cfg:      cfg,
		session:  sess,
		tagger:   &recordingTagger{},
		notifier: &recordingNotifier{},
		stdout:   &bytes.Buffer{},
	}
	h.reporter = progress.New(progress.Options{Writer: h.stdout, Logger: logging.NewNop()})
	deps := ripping.Dependencies{
		Session:  sess,
		Tagger:   h.tagger,
		Covers:   noCovers{},
		Notifier: h.notifier,
		Reporter: h.reporter,
		Stdout:   h.stdout,
		Logger:   logging.NewNop(),
	}
	for _, fn := range mutate {
		fn(&deps)
	}
	engine, err := ripping.New(cfg, deps)
	if err != nil {
		t.Fatalf("ripping.New: %v", err)
	}
	h.engine = engine
	return h
}

func (h *harness) rip(t *testing.T, uris ...string) (ripping.Summary, error) {
	t.Helper()
	ctx := context.Background()
	if err := h.engine.Login(ctx, session.Credentials{User: "tester"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := h.engine.Start(ctx, uris); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return join(t, h.engine)
}

func join(t *testing.T, engine *ripping.Engine) (ripping.Summary, error) {
	t.Helper()
	type result struct {
		summary ripping.Summary
		err     error
	}
	done := make(chan result, 1)
	go func() {
		s, err := engine.Join()
		done <- result{s, err}
	}()
	select {
	case r := <-done:
		return r.summary, r.err
	case <-time.After(20 * time.Second):
		t.Fatal("engine did not finish")
		return ripping.Summary{}, nil
	}
}

func states(tracks []*track.Track) []track.State {
	out := make([]track.State, len(tracks))
	for i, tr := range tracks {
		out[i] = tr.State()
	}
	return out
}

func partialFiles(t *testing.T, root string) []string {
	t.Helper()
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && encoder.IsPartialPath(path) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("walk %s: %v", root, err)
	}
	return found
}

func TestRipSucceedsAndWritesOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("lame"))
	sess := newFakeSession()
	sess.addTrack("spotify:track:one", "Artist", "Song", plan{frames: 30000})
	h := newHarness(t, cfg, sess)

	summary, err := h.rip(t, "spotify:track:one")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if summary.Succeeded != 1 || summary.Total != 1 || summary.RunID == "" {
		t.Fatalf("unexpected summary %+v", summary)
	}

	tracks := h.engine.Tracks()
	if len(tracks) != 1 || tracks[0].State() != track.StateSucceeded {
		t.Fatalf("unexpected states %v", states(tracks))
	}
	got := tracks[0]
	want := filepath.Join(cfg.Paths.OutputDir, "Artist", "Album", "Artist - Song.mp3")
	if got.OutputPath != want {
		t.Fatalf("output path = %q, want %q", got.OutputPath, want)
	}
	info, err := os.Stat(want)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if info.Size() != 30000*4 {
		t.Fatalf("output size = %d, want %d", info.Size(), 30000*4)
	}
	if frames, _ := got.Progress(); frames != 30000 {
		t.Fatalf("frames delivered = %d", frames)
	}
	if len(h.tagger.paths) != 1 || h.tagger.paths[0] != want {
		t.Fatalf("expected tags written to output, got %v", h.tagger.paths)
	}
	if len(partialFiles(t, cfg.Paths.OutputDir)) != 0 {
		t.Fatal("partial output left behind")
	}
	if h.engine.IsRunning() {
		t.Fatal("engine still running after Join")
	}
	// A single track prints no summary.
	if strings.Contains(h.stdout.String(), "Summary") {
		t.Fatalf("unexpected summary output %q", h.stdout.String())
	}
	if snap := h.reporter.Snapshot(); snap.Completed != 1 || snap.Total != 1 {
		t.Fatalf("unexpected reporter snapshot %+v", snap)
	}
}

func TestMiddleTrackUnavailable(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("lame"), testsupport.WithFailLog("failed.txt"))
	sess := newFakeSession()
	sess.addTrack("spotify:track:first", "A", "First", plan{frames: 8000})
	sess.addTrack("spotify:track:third", "C", "Third", plan{frames: 8000})
	h := newHarness(t, cfg, sess)

	summary, err := h.rip(t, "spotify:track:first", "spotify:track:missing", "spotify:track:third")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	want := []track.State{track.StateSucceeded, track.StateFailed, track.StateSucceeded}
	if got := states(h.engine.Tracks()); !slices.Equal(got, want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	if summary.Succeeded != 2 || summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if !errors.Is(h.engine.Tracks()[1].Err(), services.ErrTrackUnavailable) {
		t.Fatalf("expected unavailable error, got %v", h.engine.Tracks()[1].Err())
	}
	order := sess.resolveOrder()
	if !slices.Equal(order, []string{"spotify:track:first", "spotify:track:missing", "spotify:track:third"}) {
		t.Fatalf("tracks not processed in order: %v", order)
	}

	failLog, err := os.ReadFile(cfg.FailLogPath())
	if err != nil {
		t.Fatalf("read fail log: %v", err)
	}
	if string(failLog) != "spotify:track:missing\n" {
		t.Fatalf("unexpected fail log %q", failLog)
	}

	out := h.stdout.String()
	for _, wantLine := range []string{"Success Summary (2)", "Failure Summary (1)", "A - First", "spotify:track:missing"} {
		if !strings.Contains(out, wantLine) {
			t.Fatalf("summary missing %q:\n%s", wantLine, out)
		}
	}
	if sess.overlappingDeliveries() != 0 {
		t.Fatal("deliveries overlapped")
	}
	if p := h.notifier.payload(notifications.EventRunCompleted); p["failed"] != 1 || p["succeeded"] != 2 {
		t.Fatalf("unexpected completion payload %v", p)
	}
}

func TestEncoderFailureFailsTrackAndRemovesOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.InstallEncoderStub(t, "lame", testsupport.EncoderFail)
	sess := newFakeSession()
	sess.addTrack("spotify:track:one", "Artist", "Song", plan{frames: 4000})
	h := newHarness(t, cfg, sess)

	if _, err := h.rip(t, "spotify:track:one"); err != nil {
		t.Fatalf("encoder failure must not stop the run: %v", err)
	}
	got := h.engine.Tracks()[0]
	if got.State() != track.StateFailed {
		t.Fatalf("state = %s, want FAILED", got.State())
	}
	if !errors.Is(got.Err(), services.ErrEncoderRuntime) {
		t.Fatalf("expected encoder runtime error, got %v", got.Err())
	}
	if _, err := os.Stat(got.OutputPath); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected no output file, stat err = %v", err)
	}
	if left := partialFiles(t, cfg.Paths.OutputDir); len(left) != 0 {
		t.Fatalf("partial output left behind: %v", left)
	}
	if len(h.tagger.paths) != 0 {
		t.Fatal("failed track must not be tagged")
	}
}

func TestAbortMidStream(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("lame"), testsupport.WithFailLog("failed.txt"))
	sess := newFakeSession()
	sess.addTrack("spotify:track:endless", "A", "Endless", plan{infinite: true})
	sess.addTrack("spotify:track:two", "B", "Two", plan{frames: 1000})
	sess.addTrack("spotify:track:three", "C", "Three", plan{frames: 1000})
	h := newHarness(t, cfg, sess)

	ctx := context.Background()
	if err := h.engine.Login(ctx, session.Credentials{}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := h.engine.Start(ctx, []string{"spotify:track:endless", "spotify:track:two", "spotify:track:three"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		tracks := h.engine.Tracks()
		if len(tracks) > 0 {
			if frames, _ := tracks[0].Progress(); frames > 0 && tracks[0].State() == track.StateStreaming {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("first track never started streaming")
		}
		time.Sleep(5 * time.Millisecond)
	}

	abortedAt := time.Now()
	h.engine.Abort()
	summary, err := join(t, h.engine)
	if err != nil {
		t.Fatalf("abort must not surface as a run error: %v", err)
	}
	if elapsed := time.Since(abortedAt); elapsed > 5*time.Second {
		t.Fatalf("abort took %s", elapsed)
	}

	want := []track.State{track.StateAborted, track.StatePending, track.StatePending}
	if got := states(h.engine.Tracks()); !slices.Equal(got, want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	if summary.Aborted != 1 || summary.NotAttempted != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if sess.attemptsFor("spotify:track:two") != 0 {
		t.Fatal("a pending track was delivered after abort")
	}
	if left := partialFiles(t, cfg.Paths.OutputDir); len(left) != 0 {
		t.Fatalf("partial output left behind: %v", left)
	}
	// Aborted tracks are not failures, so the empty fail log is removed.
	if _, err := os.Stat(cfg.FailLogPath()); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fail log to be removed, stat err = %v", err)
	}
}

func TestTransientDeliveryErrorRetriedOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("lame"))
	sess := newFakeSession()
	sess.addTrack("spotify:track:flaky", "A", "Flaky", plan{frames: 6000, transientFailures: 1, failAfter: 2048})
	sess.addTrack("spotify:track:broken", "B", "Broken", plan{frames: 6000, transientFailures: 5, failAfter: 1024})
	h := newHarness(t, cfg, sess)

	if _, err := h.rip(t, "spotify:track:flaky", "spotify:track:broken"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	tracks := h.engine.Tracks()

	flaky := tracks[0]
	if flaky.State() != track.StateSucceeded || flaky.Attempts() != 2 {
		t.Fatalf("flaky: state=%s attempts=%d", flaky.State(), flaky.Attempts())
	}
	if frames, _ := flaky.Progress(); frames != 6000 {
		t.Fatalf("retry must restart the frame count, got %d", frames)
	}
	if info, err := os.Stat(flaky.OutputPath); err != nil || info.Size() != 6000*4 {
		t.Fatalf("unexpected retried output: %v %v", info, err)
	}

	broken := tracks[1]
	if broken.State() != track.StateFailed || broken.Attempts() != 2 {
		t.Fatalf("broken: state=%s attempts=%d", broken.State(), broken.Attempts())
	}
	if !errors.Is(broken.Err(), services.ErrTransientDelivery) {
		t.Fatalf("expected transient error, got %v", broken.Err())
	}
	if sess.attemptsFor("spotify:track:broken") != 2 {
		t.Fatalf("expected exactly two deliveries, got %d", sess.attemptsFor("spotify:track:broken"))
	}
}

func TestMissingEncoderNeverStarts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	t.Setenv("PATH", t.TempDir())
	sess := newFakeSession()

	_, err := ripping.New(cfg, ripping.Dependencies{Session: sess, Logger: logging.NewNop()})
	if !errors.Is(err, services.ErrEncoderSpawn) {
		t.Fatalf("expected encoder spawn error, got %v", err)
	}
	if !services.IsFatal(err) {
		t.Fatal("missing encoder must be fatal")
	}
}

func TestStartRequiresLogin(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("lame"))
	sess := newFakeSession()
	sess.loginErr = errors.New("bad password")
	h := newHarness(t, cfg, sess)

	ctx := context.Background()
	if err := h.engine.Start(ctx, []string{"spotify:track:x"}); !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected auth error before login, got %v", err)
	}
	if err := h.engine.Login(ctx, session.Credentials{User: "tester"}); !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected auth error from login, got %v", err)
	}
	if err := h.engine.Start(ctx, []string{"spotify:track:x"}); !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected auth error after failed login, got %v", err)
	}
	if h.engine.IsRunning() {
		t.Fatal("engine must not run")
	}
	if _, err := h.engine.Join(); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected Join to report an unstarted engine, got %v", err)
	}
}

func TestStartTwiceRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("lame"))
	sess := newFakeSession()
	sess.addTrack("spotify:track:one", "A", "One", plan{frames: 100})
	h := newHarness(t, cfg, sess)
	if _, err := h.rip(t, "spotify:track:one"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := h.engine.Start(context.Background(), []string{"spotify:track:one"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error on second Start, got %v", err)
	}
}

func TestFatalErrorStopsQueue(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("lame"))
	sess := newFakeSession()
	sess.addTrack("spotify:track:one", "A", "One", plan{frames: 100})
	sess.addTrack("spotify:track:two", "B", "Two", plan{frames: 100})
	sess.resolveErr["spotify:track:one"] = services.Wrap(services.ErrAuth, "fake", "resolve", "session expired", nil)
	h := newHarness(t, cfg, sess)

	summary, err := h.rip(t, "spotify:track:one", "spotify:track:two")
	if !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected auth error from Join, got %v", err)
	}
	want := []track.State{track.StateFailed, track.StatePending}
	if got := states(h.engine.Tracks()); !slices.Equal(got, want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	if summary.NotAttempted != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if h.notifier.payload(notifications.EventError) == nil {
		t.Fatal("expected an error notification")
	}
}

func TestTaggingFailureKeepsTrack(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("lame"))
	sess := newFakeSession()
	sess.addTrack("spotify:track:one", "A", "One", plan{frames: 500})
	h := newHarness(t, cfg, sess)
	h.tagger.err = services.Wrap(services.ErrTagging, "fake", "write", "", errors.New("read-only"))

	if _, err := h.rip(t, "spotify:track:one"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if got := h.engine.Tracks()[0].State(); got != track.StateSucceeded {
		t.Fatalf("state = %s, want SUCCEEDED", got)
	}
}

func TestExistingOutputIsSkipped(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("lame"))
	sess := newFakeSession()
	sess.addTrack("spotify:track:one", "A", "One", plan{frames: 500})
	existing := filepath.Join(cfg.Paths.OutputDir, "A", "Album", "A - One.mp3")
	testsupport.WriteFile(t, existing, 10)
	h := newHarness(t, cfg, sess)

	summary, err := h.rip(t, "spotify:track:one")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if summary.Skipped != 1 || sess.attemptsFor("spotify:track:one") != 0 {
		t.Fatalf("expected skip without delivery: %+v attempts=%d", summary, sess.attemptsFor("spotify:track:one"))
	}
	if info, err := os.Stat(existing); err != nil || info.Size() != 10 {
		t.Fatalf("existing output must be untouched: %v %v", info, err)
	}
}

func TestSkipRippedUsesHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("lame"))
	store := testsupport.MustOpenHistory(t, cfg)
	sess := newFakeSession()
	sess.addTrack("spotify:track:one", "A", "One", plan{frames: 500})
	withHistory := func(d *ripping.Dependencies) { d.History = store }

	first := newHarness(t, cfg, sess, withHistory)
	if _, err := first.rip(t, "spotify:track:one"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstPath := first.engine.Tracks()[0].OutputPath

	// A different layout would normally rip again.
	cfg.Output.Flat = true
	cfg.Engine.SkipRipped = true
	second := newHarness(t, cfg, sess, withHistory)
	summary, err := second.rip(t, "spotify:track:one")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	got := second.engine.Tracks()[0]
	if summary.Skipped != 1 || got.OutputPath != firstPath {
		t.Fatalf("expected skip pointing at %q, got %+v path=%q", firstPath, summary, got.OutputPath)
	}

	outcomes, err := store.Outcomes(context.Background(), second.engine.RunID())
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].State != track.StateSkipped {
		t.Fatalf("unexpected outcomes %+v", outcomes)
	}
	run, err := store.GetRun(context.Background(), second.engine.RunID())
	if err != nil || run == nil || !run.Finished() || run.Skipped != 1 {
		t.Fatalf("unexpected run %+v err=%v", run, err)
	}
}

func TestPlaylistSourceWritesM3UAndRemovesTracks(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("lame"))
	cfg.Playlist.M3U = true
	cfg.Playlist.RemoveFromPlaylist = true
	sess := newFakeSession()
	sess.addTrack("spotify:track:one", "A", "One", plan{frames: 500})
	sess.addTrack("spotify:track:two", "B", "Two", plan{frames: 500})
	sess.addSource(session.Source{
		Kind:    session.KindPlaylist,
		URI:     "spotify:playlist:mix",
		ID:      "mix",
		Name:    "Road Trip",
		OwnerID: "tester",
		Entries: []session.Entry{
			{URI: "spotify:track:one", Index: 0},
			{URI: "spotify:track:gone", Index: 1},
			{URI: "spotify:track:two", Index: 2},
		},
	})
	h := newHarness(t, cfg, sess)

	if _, err := h.rip(t, "spotify:playlist:mix"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	m3u, err := os.ReadFile(filepath.Join(cfg.Paths.OutputDir, "Road Trip.m3u"))
	if err != nil {
		t.Fatalf("read m3u: %v", err)
	}
	if string(m3u) != "A/Album/A - One.mp3\nB/Album/B - Two.mp3\n" {
		t.Fatalf("unexpected m3u %q", m3u)
	}
	if got := sess.removedFrom("spotify:playlist:mix"); !slices.Equal(got, []int{0, 2}) {
		t.Fatalf("removed indices = %v, want [0 2]", got)
	}
}

func TestURIListFile(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("lame"))
	sess := newFakeSession()
	sess.addTrack("spotify:track:one", "A", "One", plan{frames: 200})
	sess.addTrack("spotify:track:two", "B", "Two", plan{frames: 200})
	list := filepath.Join(testsupport.BaseDir(cfg), "uris.txt")
	if err := os.WriteFile(list, []byte("# weekend\nspotify:track:one\n\nspotify:track:two\n"), 0o644); err != nil {
		t.Fatalf("write list: %v", err)
	}
	h := newHarness(t, cfg, sess)

	summary, err := h.rip(t, list)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if summary.Total != 2 || summary.Succeeded != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestSmallBufferAppliesBackPressure(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("lame"))
	cfg.Engine.BufferBytes = 4096
	sess := newFakeSession()
	sess.addTrack("spotify:track:one", "A", "One", plan{frames: 20000})
	h := newHarness(t, cfg, sess)

	if _, err := h.rip(t, "spotify:track:one"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	got := h.engine.Tracks()[0]
	if got.State() != track.StateSucceeded {
		t.Fatalf("state = %s", got.State())
	}
	if info, err := os.Stat(got.OutputPath); err != nil || info.Size() != 20000*4 {
		t.Fatalf("frames lost under back-pressure: %v %v", info, err)
	}
	if sess.refusals.Load() == 0 {
		t.Fatal("expected the buffer to refuse pushes")
	}
}

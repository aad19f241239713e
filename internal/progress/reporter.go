package progress

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"spotrip/internal/logging"
	"spotrip/internal/track"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	minBarWidth   = 10
	// Room taken by the percentage, counters and brackets around the bar.
	barChrome = 30
)

// SizeFunc reports the terminal geometry.
type SizeFunc func() (width, height int, err error)

// Options configures a Reporter.
type Options struct {
	// Writer receives the bar. Defaults to os.Stdout.
	Writer io.Writer
	// Render enables the bar; when false only sampled log lines are written.
	Render bool
	Size   SizeFunc
	Logger *slog.Logger
}

// TrackSnapshot is the progress of the track in flight.
type TrackSnapshot struct {
	URI     string
	Label   string
	Frames  int64
	Total   int64
	Elapsed time.Duration
}

// Snapshot is a copy of the reporter's counters.
type Snapshot struct {
	Current   *TrackSnapshot
	Total     int
	Completed int
	Failed    int
	Aborted   int
	Skipped   int
	Remaining int
	Width     int
	Height    int
}

// Done is the number of tracks that reached a terminal state.
func (s Snapshot) Done() int {
	return s.Completed + s.Failed + s.Aborted + s.Skipped
}

type current struct {
	uri     string
	label   string
	frames  int64
	total   int64
	started time.Time
	sampler *logging.ProgressSampler
}

// Reporter tracks rip progress. The zero value is not usable; call New.
type Reporter struct {
	mu     sync.Mutex
	w      io.Writer
	render bool
	size   SizeFunc
	logger *slog.Logger

	width  int
	height int

	total     int
	completed int
	failed    int
	aborted   int
	skipped   int

	cur *current
	bar *progressbar.ProgressBar
}

// New builds a reporter and reads the initial terminal size.
func New(opts Options) *Reporter {
	r := &Reporter{
		w:      opts.Writer,
		render: opts.Render,
		size:   opts.Size,
		logger: logging.NewComponentLogger(opts.Logger, "progress"),
	}
	if r.w == nil {
		r.w = os.Stdout
	}
	if r.size == nil {
		r.size = StdoutSize
	}
	r.width, r.height = r.readSize()
	return r
}

// ShouldRender reports whether w is an interactive terminal and log lines
// are not already going to stdout.
func ShouldRender(w io.Writer, logsToStdout bool) bool {
	if logsToStdout {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// StdoutSize reads the size of the terminal attached to stdout.
func StdoutSize() (int, int, error) {
	return term.GetSize(int(os.Stdout.Fd()))
}

func (r *Reporter) readSize() (int, int) {
	width, height, err := r.size()
	if err != nil || width <= 0 {
		width = defaultWidth
	}
	if err != nil || height <= 0 {
		height = defaultHeight
	}
	return width, height
}

// SetTotal records how many tracks the run will attempt.
func (r *Reporter) SetTotal(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total = n
}

// Begin starts progress for t, replacing any previous track's bar.
func (r *Reporter) Begin(t *track.Track) {
	_, total := t.Progress()
	label := t.Label()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearBarLocked()
	r.cur = &current{
		uri:     t.URI,
		label:   label,
		total:   total,
		started: time.Now(),
		sampler: logging.NewProgressSampler(5),
	}
	r.buildBarLocked()
}

// Update records framesDelivered for the track in flight. Updates for any
// other URI are ignored.
func (r *Reporter) Update(uri string, framesDelivered int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.cur
	if cur == nil || cur.uri != uri {
		return
	}
	cur.frames = framesDelivered
	if r.bar != nil {
		if cur.total > 0 && framesDelivered > cur.total {
			r.bar.ChangeMax64(framesDelivered)
			cur.total = framesDelivered
		}
		_ = r.bar.Set64(framesDelivered)
		return
	}
	percent := -1.0
	if cur.total > 0 {
		percent = float64(framesDelivered) / float64(cur.total) * 100
	}
	if cur.sampler.ShouldLog(percent, "streaming") {
		r.logger.Info("track progress",
			logging.TrackURI(uri),
			logging.String("track", cur.label),
			logging.Float64("percent", percent),
			logging.Int64("frames", framesDelivered),
			logging.String("position", r.positionLocked()),
		)
	}
}

// TrackDone counts the terminal outcome of uri and clears its bar.
func (r *Reporter) TrackDone(uri string, outcome track.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch outcome {
	case track.StateSucceeded:
		r.completed++
	case track.StateFailed:
		r.failed++
	case track.StateAborted:
		r.aborted++
	case track.StateSkipped:
		r.skipped++
	default:
		return
	}
	if r.cur != nil && r.cur.uri == uri {
		if r.bar != nil && outcome == track.StateSucceeded {
			_ = r.bar.Finish()
		}
		r.clearBarLocked()
		r.cur = nil
	}
}

// HandleResize re-reads the terminal size and rebuilds the bar at the new width.
func (r *Reporter) HandleResize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	width, height := r.readSize()
	if width == r.width && height == r.height {
		return
	}
	r.width, r.height = width, height
	if r.bar != nil {
		r.clearBarLocked()
		r.buildBarLocked()
	}
}

// Snapshot returns a copy of the counters.
func (r *Reporter) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Snapshot{
		Total:     r.total,
		Completed: r.completed,
		Failed:    r.failed,
		Aborted:   r.aborted,
		Skipped:   r.skipped,
		Width:     r.width,
		Height:    r.height,
	}
	s.Remaining = s.Total - s.Done()
	if s.Remaining < 0 {
		s.Remaining = 0
	}
	if cur := r.cur; cur != nil {
		s.Current = &TrackSnapshot{
			URI:     cur.uri,
			Label:   cur.label,
			Frames:  cur.frames,
			Total:   cur.total,
			Elapsed: time.Since(cur.started),
		}
	}
	return s
}

// Close removes any bar still on screen.
func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearBarLocked()
}

func (r *Reporter) positionLocked() string {
	done := r.completed + r.failed + r.aborted + r.skipped
	if r.total <= 0 {
		return fmt.Sprintf("[%d]", done+1)
	}
	return fmt.Sprintf("[%d/%d]", done+1, r.total)
}

func (r *Reporter) buildBarLocked() {
	if !r.render || r.cur == nil {
		return
	}
	desc := r.positionLocked() + " " + r.cur.label
	width := r.width - len([]rune(desc)) - barChrome
	if width < minBarWidth {
		width = minBarWidth
		if room := r.width - barChrome - minBarWidth; room > 3 && len([]rune(desc)) > room {
			desc = string([]rune(desc)[:room-3]) + "..."
		}
	}
	limit := r.cur.total
	if limit <= 0 {
		limit = -1
	}
	r.bar = progressbar.NewOptions64(limit,
		progressbar.OptionSetWriter(r.w),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWidth(width),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
	if r.cur.frames > 0 {
		_ = r.bar.Set64(r.cur.frames)
	}
}

func (r *Reporter) clearBarLocked() {
	if r.bar == nil {
		return
	}
	_ = r.bar.Clear()
	r.bar = nil
}

package track

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"spotrip/internal/services"
)

// SampleRate is the fixed PCM sample rate of delivered audio.
const SampleRate = 44100

// Metadata is the display and tagging information resolved for a track.
type Metadata struct {
	Artists     []string
	Title       string
	Album       string
	AlbumArtist string
	TrackNumber int
	DiscNumber  int
	Year        string
	Duration    time.Duration
	CoverURL    string
	Genres      []string
	ISRC        string
}

// Artist returns the primary artist or "".
func (m Metadata) Artist() string {
	if len(m.Artists) == 0 {
		return ""
	}
	return m.Artists[0]
}

// DisplayName renders "artist - title", or "" when the title is unknown.
func (m Metadata) DisplayName() string {
	title := strings.TrimSpace(m.Title)
	if title == "" {
		return ""
	}
	if artist := strings.TrimSpace(m.Artist()); artist != "" {
		return artist + " - " + title
	}
	return title
}

// TotalFrames converts the duration into an expected frame count.
func (m Metadata) TotalFrames() int64 {
	if m.Duration <= 0 {
		return 0
	}
	return int64(m.Duration.Seconds() * SampleRate)
}

// Transition describes one state change observed through a Hook.
type Transition struct {
	URI   string
	Index int
	From  State
	To    State
	At    time.Time
	Err   error
}

// Hook observes every state change. It runs synchronously on the goroutine
// driving the transition.
type Hook func(Transition)

// Track is a single queued rip. State changes go through Transition, Fail,
// Abort, Skip and Retry; fields are safe for concurrent reads via Snapshot.
type Track struct {
	mu sync.Mutex

	URI        string
	Index      int
	Metadata   Metadata
	OutputPath string

	state           State
	err             error
	attempts        int
	framesDelivered int64
	totalFrames     int64
	changedAt       map[State]time.Time
	hook            Hook
}

// New returns a PENDING track.
func New(uri string, index int) *Track {
	now := time.Now()
	return &Track{
		URI:       uri,
		Index:     index,
		state:     StatePending,
		changedAt: map[State]time.Time{StatePending: now},
	}
}

// SetHook installs the transition observer.
func (t *Track) SetHook(h Hook) {
	t.mu.Lock()
	t.hook = h
	t.mu.Unlock()
}

// State returns the current state.
func (t *Track) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the error that moved the track to FAILED or ABORTED.
func (t *Track) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Attempts returns how many times the track entered RESOLVING.
func (t *Track) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

// SetResolved records resolved metadata and the expected frame count.
func (t *Track) SetResolved(meta Metadata) {
	t.mu.Lock()
	t.Metadata = meta
	t.totalFrames = meta.TotalFrames()
	t.mu.Unlock()
}

// AddFrames accumulates delivered frames and returns the new total.
func (t *Track) AddFrames(n int) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.framesDelivered += int64(n)
	return t.framesDelivered
}

// Progress returns the delivered and expected frame counts.
func (t *Track) Progress() (delivered, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.framesDelivered, t.totalFrames
}

// ChangedAt returns when the track entered s, if it has.
func (t *Track) ChangedAt(s State) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.changedAt[s]
	return at, ok
}

// Elapsed returns the time since the track first entered RESOLVING.
func (t *Track) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	start, ok := t.changedAt[StateResolving]
	if !ok {
		return 0
	}
	end := time.Now()
	if t.state.IsTerminal() {
		end = t.changedAt[t.state]
	}
	return end.Sub(start)
}

// Label is the summary line for the track: "artist - title" or the URI.
func (t *Track) Label() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if name := t.Metadata.DisplayName(); name != "" {
		return name
	}
	return t.URI
}

// Transition moves the track to next, returning ErrInvalidTransition for
// illegal edges.
func (t *Track) Transition(next State) error {
	return t.move(next, nil)
}

// Fail moves the track to FAILED and records err.
func (t *Track) Fail(err error) error {
	return t.move(StateFailed, err)
}

// Abort moves the track to ABORTED.
func (t *Track) Abort(err error) error {
	if err == nil {
		err = services.ErrAborted
	}
	return t.move(StateAborted, err)
}

// Skip moves a resolving track to SKIPPED.
func (t *Track) Skip(reason string) error {
	var err error
	if reason != "" {
		err = fmt.Errorf("skipped: %s", reason)
	}
	return t.move(StateSkipped, err)
}

// Retry returns an active track to RESOLVING when err is retryable and the
// attempt budget allows another go. Delivered frame counters are reset.
func (t *Track) Retry(err error, maxRetries int) error {
	t.mu.Lock()
	if t.state.IsTerminal() || t.state == StatePending {
		from := t.state
		t.mu.Unlock()
		return fmt.Errorf("%w: retry from %s", ErrInvalidTransition, from)
	}
	if !services.IsRetryable(err) {
		t.mu.Unlock()
		return fmt.Errorf("%w: %v is not retryable", ErrInvalidTransition, err)
	}
	if t.attempts > maxRetries {
		t.mu.Unlock()
		return fmt.Errorf("%w: retry budget of %d exhausted", ErrInvalidTransition, maxRetries)
	}
	tr := t.apply(StateResolving, err)
	t.framesDelivered = 0
	hook := t.hook
	t.mu.Unlock()

	if hook != nil {
		hook(tr)
	}
	return nil
}

func (t *Track) move(next State, err error) error {
	t.mu.Lock()
	if !CanTransition(t.state, next) {
		from := t.state
		t.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, next)
	}
	tr := t.apply(next, err)
	hook := t.hook
	t.mu.Unlock()

	if hook != nil {
		hook(tr)
	}
	return nil
}

// apply must be called with mu held.
func (t *Track) apply(next State, err error) Transition {
	now := time.Now()
	tr := Transition{URI: t.URI, Index: t.Index, From: t.state, To: next, At: now, Err: err}
	t.state = next
	t.changedAt[next] = now
	if next == StateResolving {
		t.attempts++
	}
	if err != nil || next.IsTerminal() {
		t.err = err
	}
	return tr
}

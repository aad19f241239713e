package history

import (
	"database/sql"
	"strings"
	"time"

	"spotrip/internal/track"
)

// Run is one invocation of the rip command.
type Run struct {
	ID           string
	Sources      []string
	Format       string
	StartedAt    time.Time
	FinishedAt   time.Time
	Succeeded    int
	Failed       int
	Aborted      int
	Skipped      int
	ErrorMessage string
}

// Finished reports whether the run recorded an end time.
func (r Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// Total is the number of tracks that reached a terminal state.
func (r Run) Total() int {
	return r.Succeeded + r.Failed + r.Aborted + r.Skipped
}

// Outcome is the terminal result of one track within a run.
type Outcome struct {
	RunID        string
	TrackURI     string
	SourceURI    string
	Position     int
	State        track.State
	OutputPath   string
	Artist       string
	Title        string
	Attempts     int
	ErrorMessage string
	FinishedAt   time.Time
}

// Fixed-width UTC timestamps keep lexical and chronological order equal.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(raw sql.NullString) time.Time {
	if !raw.Valid || raw.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, raw.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const sourceSeparator = "\n"

func joinSources(sources []string) string {
	return strings.Join(sources, sourceSeparator)
}

func splitSources(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, sourceSeparator)
}

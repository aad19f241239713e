package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"spotrip/internal/track"
)

const runColumns = "id, sources, format, started_at, finished_at, succeeded, failed, aborted, skipped, error_message"

const outcomeColumns = "run_id, track_uri, source_uri, position, state, output_path, artist, title, attempts, error_message, finished_at"

// BeginRun inserts the run row. StartedAt defaults to now.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("begin run: id is required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	err := s.exec(ctx,
		"INSERT INTO runs (id, sources, format, started_at) VALUES (?, ?, ?, ?)",
		run.ID, joinSources(run.Sources), run.Format, formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("begin run %s: %w", run.ID, err)
	}
	return nil
}

// RecordOutcome stores the terminal result of one track.
func (s *Store) RecordOutcome(ctx context.Context, outcome Outcome) error {
	if outcome.FinishedAt.IsZero() {
		outcome.FinishedAt = time.Now()
	}
	err := s.exec(ctx,
		"INSERT INTO outcomes ("+outcomeColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		outcome.RunID, outcome.TrackURI, outcome.SourceURI, outcome.Position, string(outcome.State),
		outcome.OutputPath, outcome.Artist, outcome.Title, outcome.Attempts,
		nullString(outcome.ErrorMessage), formatTime(outcome.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record outcome %s: %w", outcome.TrackURI, err)
	}
	return nil
}

// FinishRun stores the counters and end time of run.
func (s *Store) FinishRun(ctx context.Context, run Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	err := s.exec(ctx,
		`UPDATE runs SET finished_at = ?, succeeded = ?, failed = ?, aborted = ?, skipped = ?, error_message = ?
		 WHERE id = ?`,
		formatTime(run.FinishedAt), run.Succeeded, run.Failed, run.Aborted, run.Skipped,
		nullString(run.ErrorMessage), run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+runColumns+" FROM runs ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns the run with id, or (nil, nil) when it does not exist.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Outcomes lists the outcomes of one run in source order.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	return s.queryOutcomes(ctx,
		"SELECT "+outcomeColumns+" FROM outcomes WHERE run_id = ? ORDER BY id", runID)
}

// LastSuccess returns the newest successful outcome for trackURI, or
// (nil, nil) when the track was never ripped.
func (s *Store) LastSuccess(ctx context.Context, trackURI string) (*Outcome, error) {
	outcomes, err := s.queryOutcomes(ctx,
		"SELECT "+outcomeColumns+" FROM outcomes WHERE track_uri = ? AND state = ? ORDER BY id DESC LIMIT 1",
		trackURI, string(track.StateSucceeded))
	if err != nil || len(outcomes) == 0 {
		return nil, err
	}
	return &outcomes[0], nil
}

// SourceFiles maps track URI to output path for the successful outcomes of
// the most recent earlier run of sourceURI, excluding run excludeRunID.
func (s *Store) SourceFiles(ctx context.Context, sourceURI, excludeRunID string) (map[string]string, error) {
	var runID string
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT o.run_id FROM outcomes o JOIN runs r ON r.id = o.run_id
		 WHERE o.source_uri = ? AND o.run_id != ?
		 ORDER BY r.started_at DESC LIMIT 1`,
		sourceURI, excludeRunID,
	).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find previous run of %s: %w", sourceURI, err)
	}

	outcomes, err := s.queryOutcomes(ctx,
		"SELECT "+outcomeColumns+" FROM outcomes WHERE run_id = ? AND source_uri = ? AND state = ? ORDER BY id",
		runID, sourceURI, string(track.StateSucceeded))
	if err != nil {
		return nil, err
	}
	files := make(map[string]string, len(outcomes))
	for _, o := range outcomes {
		if o.OutputPath != "" {
			files[o.TrackURI] = o.OutputPath
		}
	}
	return files, nil
}

// Prune deletes runs that started before cutoff along with their outcomes.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", formatTime(cutoff))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return affected, nil
}

func (s *Store) queryOutcomes(ctx context.Context, query string, args ...any) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var (
			o        Outcome
			state    string
			errMsg   sql.NullString
			finished sql.NullString
		)
		if err := rows.Scan(&o.RunID, &o.TrackURI, &o.SourceURI, &o.Position, &state,
			&o.OutputPath, &o.Artist, &o.Title, &o.Attempts, &errMsg, &finished); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.State = track.State(state)
		o.ErrorMessage = errMsg.String
		o.FinishedAt = parseTime(finished)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run      Run
		sources  string
		started  sql.NullString
		finished sql.NullString
		errMsg   sql.NullString
	)
	if err := scanner.Scan(&run.ID, &sources, &run.Format, &started, &finished,
		&run.Succeeded, &run.Failed, &run.Aborted, &run.Skipped, &errMsg); err != nil {
		return Run{}, err
	}
	run.Sources = splitSources(sources)
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished)
	run.ErrorMessage = errMsg.String
	return run, nil
}

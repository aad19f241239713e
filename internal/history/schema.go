package history

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
)

// Ledger migrations are applied in file name order. The database records how
// many have run in PRAGMA user_version, so a new file is picked up by every
// existing ledger on its next open. Files are never edited once released.
//
//go:embed migrations/*.sql
var migrationFS embed.FS

// ErrSchemaMismatch reports a ledger written by a newer spotrip.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func migrations() ([]string, error) {
	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	steps := make([]string, 0, len(names))
	for _, name := range names {
		body, err := migrationFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		steps = append(steps, string(body))
	}
	return steps, nil
}

// migrate brings the ledger up to the latest version in one transaction.
func (s *Store) migrate(ctx context.Context) error {
	steps, err := migrations()
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read ledger version: %w", err)
	}
	switch {
	case version == len(steps):
		return nil
	case version > len(steps):
		return fmt.Errorf("%w: %s is at version %d, this build knows %d (upgrade spotrip or move the file aside)",
			ErrSchemaMismatch, s.path, version, len(steps))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := version; i < len(steps); i++ {
		if _, err := tx.ExecContext(ctx, steps[i]); err != nil {
			return fmt.Errorf("apply ledger migration %d: %w", i+1, err)
		}
	}
	// PRAGMA does not take bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", len(steps))); err != nil {
		return fmt.Errorf("record ledger version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

// Package history keeps a SQLite ledger of rip runs and per-track outcomes.
//
// Each run gets a row in runs and one row per terminal track in outcomes. The
// ledger backs the `spotrip history` command, the skip_ripped option (a track
// whose last successful output still exists is skipped) and playlist sync
// (files from an earlier rip of the same playlist that are no longer listed
// are removed).
//
// Schema changes are new files under migrations/. Older ledgers are upgraded
// in place on open; a ledger from a newer build is rejected with
// ErrSchemaMismatch.
package history

// Package track holds the per-track data model and its lifecycle state
// machine.
//
// States only move forward. Any non-terminal state may fail or abort,
// RESOLVING may be skipped, and Retry is the single sanctioned backward edge
// (to RESOLVING) for transient delivery errors. Terminal states are never
// left.
package track

// Package services defines shared error markers and context helpers consumed
// by the engine and its collaborators.
//
// Key responsibilities:
//   - Sentinel errors for every failure kind the ripper distinguishes (auth,
//     unavailable track, transient delivery, encoder spawn/runtime, tagging,
//     abort) plus the Wrap helper that adds stage context without losing the
//     marker for errors.Is classification.
//   - Context helpers that stamp run IDs, track URIs and stage names for
//     logging.
package services

// Package session provides the authenticated connection the ripping engine
// consumes: a Catalog for login, metadata, source expansion and playlist
// edits, and a Delivery that pushes PCM for one track at a time to a
// Handler.
//
// The production Catalog talks to the Spotify Web API through a rate-limited
// OAuth client. Web API errors are classified by HTTP status so the engine can
// tell auth failures (401/403) from unavailable tracks (404) and transient
// trouble (429/5xx). The production Delivery runs the configured pcm_command
// once per track and streams its stdout.
package session

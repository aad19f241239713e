// Package main hosts the spotrip CLI.
//
// The cobra command tree resolves configuration, applies flag overrides,
// prints the settings banner and hands the URIs to the ripping engine. Signal
// handling lives here: an interrupt during login cancels the login, and an
// interrupt during the rip aborts the engine and waits for its finaliser.
// History, configuration scaffolding and notification checks are separate
// subcommands.
package main

// Package config loads, normalizes, and validates spotrip configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads a .env file from the settings directory,
// and honours environment fallbacks such as SPOTIFY_ID and SPOTRIP_PASSWORD.
// Format-specific quality defaults (FLAC compression, Vorbis/Opus/AAC VBR
// targets) are applied during normalization so the encoder layer always sees
// concrete values.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical format names, and clear validation errors.
package config

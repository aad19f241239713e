// Package textutil provides text helpers shared by path rendering, tagging
// and the playlist writers.
//
// The primary use cases are:
//   - Sanitizing filenames and path segments for safe filesystem use
//   - Folding Unicode text to ASCII for ascii and ascii-path-only modes
//   - Title casing codec and state labels for terminal output
package textutil

// Package preflight provides readiness checks run once before the engine
// starts.
//
// The encoder for the requested output format must be resolvable on PATH;
// when it is not, the run is refused with an install hint and no track is
// attempted. The output and settings directories must be writable.
package preflight

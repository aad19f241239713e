// Package encoder turns a stream of s16le stereo 44.1 kHz PCM into an output
// file.
//
// Codec formats run one external encoder subprocess per track with PCM on its
// stdin; wav and pcm are written directly. Every sink writes to
// "<path>.part" and renames into place only when the output verifies, so a
// partial file exists only while the sink is live.
package encoder

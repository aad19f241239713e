// Package tagging writes metadata into finished audio files.
//
// MP3 files get ID3v2 frames (v2.4 by default, v2.3 on request) and FLAC
// files get Vorbis comments plus a front-cover picture block. Codecs whose
// encoders take metadata on the command line are tagged at encode time, so
// WriteTags leaves them alone. After writing, tags are read back to verify
// the file still parses.
package tagging

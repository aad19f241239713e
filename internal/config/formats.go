package config

import (
	"strconv"
	"strings"
)

// Output formats.
const (
	FormatMP3  = "mp3"
	FormatFLAC = "flac"
	FormatOgg  = "ogg"
	FormatOpus = "opus"
	FormatAAC  = "aac"
	FormatM4A  = "m4a"
	FormatALAC = "alac"
	FormatWAV  = "wav"
	FormatPCM  = "pcm"
)

var formatAliases = map[string]string{
	"vorbis":   FormatOgg,
	"mp4":      FormatM4A,
	"alac.m4a": FormatALAC,
}

var formatExtensions = map[string]string{
	FormatMP3:  "mp3",
	FormatFLAC: "flac",
	FormatOgg:  "ogg",
	FormatOpus: "opus",
	FormatAAC:  "aac",
	FormatM4A:  "m4a",
	FormatALAC: "m4a",
	FormatWAV:  "wav",
	FormatPCM:  "pcm",
}

// CanonicalFormat maps user spellings (vorbis, mp4, alac.m4a) to format names.
// Unknown values are returned lowercased so validation can report them.
func CanonicalFormat(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if alias, ok := formatAliases[v]; ok {
		return alias
	}
	return v
}

// Extension returns the file extension for the configured format.
func (e Encoding) Extension() string {
	return formatExtensions[e.Format]
}

// UsesEncoder reports whether the format needs an external encoder process.
func (e Encoding) UsesEncoder() bool {
	return e.Format != FormatWAV && e.Format != FormatPCM
}

// Describe renders the encoding settings for the startup banner.
func (e Encoding) Describe() string {
	switch e.Format {
	case FormatWAV:
		return "WAV, Stereo 16bit 44100Hz"
	case FormatPCM:
		return "Raw Headerless PCM, Stereo 16bit 44100Hz"
	case FormatFLAC:
		return "FLAC, Compression Level: " + strconv.Itoa(e.Comp)
	case FormatALAC:
		return "Apple Lossless (ALAC)"
	}
	codec := map[string]string{
		FormatOgg:  "Ogg Vorbis",
		FormatOpus: "Opus",
		FormatMP3:  "MP3",
		FormatM4A:  "MPEG4 AAC",
		FormatAAC:  "AAC",
	}[e.Format]
	if codec == "" {
		codec = "Unknown"
	}
	if e.CBR {
		return codec + ", CBR " + strconv.Itoa(e.Bitrate) + " kbps"
	}
	return codec + ", VBR " + e.VBR
}

package encoder

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"spotrip/internal/config"
)

// BuildArgs returns the encoder argument list that reads raw PCM from stdin
// and writes out. avconv and ffmpeg share the alac argument set.
func BuildArgs(enc config.Encoding, out string) ([]string, error) {
	return BuildTaggedArgs(enc, out, Tags{})
}

// BuildTaggedArgs is BuildArgs plus command-line metadata for encoders that
// accept it. MP3 and FLAC ignore tags here; they are tagged after encoding.
func BuildTaggedArgs(enc config.Encoding, out string, tags Tags) ([]string, error) {
	meta := tags.args(enc.Format)
	switch enc.Format {
	case config.FormatMP3:
		args := []string{}
		if enc.CBR {
			args = append(args, "--cbr", "-b", strconv.Itoa(enc.Bitrate))
		} else {
			args = append(args, "-V", enc.VBR)
		}
		if mode := strings.TrimSpace(enc.StereoMode); mode != "" {
			args = append(args, "-m", mode)
		}
		return append(args, "-r", "-s", "44.1", "--bitwidth", "16", "--signed", "--little-endian", "-", out), nil

	case config.FormatFLAC:
		return []string{
			"--force-raw-format", "--endian=little", "--channels=2", "--bps=16",
			"--sample-rate=44100", "--sign=signed", "-" + strconv.Itoa(enc.Comp),
			"-o", out, "-",
		}, nil

	case config.FormatOgg:
		args := []string{"-r"}
		if enc.CBR {
			args = append(args, "-b", strconv.Itoa(enc.Bitrate))
		} else {
			args = append(args, "-q", enc.VBR)
		}
		args = append(args, meta...)
		return append(args, "-o", out, "-"), nil

	case config.FormatOpus:
		args := []string{"--raw", "--raw-rate", "44100"}
		if enc.CBR {
			args = append(args, "--hard-cbr", "--bitrate", strconv.Itoa(enc.Bitrate))
		} else {
			args = append(args, "--bitrate", enc.VBR, "--comp", strconv.Itoa(enc.Comp))
		}
		args = append(args, meta...)
		return append(args, "-", out), nil

	case config.FormatAAC:
		args := []string{"-P", "-X"}
		if enc.CBR {
			args = append(args, "-b", strconv.Itoa(enc.Bitrate))
		} else {
			args = append(args, "-q", enc.VBR)
		}
		args = append(args, meta...)
		return append(args, "-o", out, "-"), nil

	case config.FormatM4A:
		args := []string{"-R", "-S"}
		if enc.CBR {
			args = append(args, "-b", strconv.Itoa(enc.Bitrate)+"k")
		} else {
			args = append(args, "-m", enc.VBR)
		}
		args = append(args, meta...)
		return append(args, "-o", out, "-"), nil

	case config.FormatALAC:
		// The muxer is named explicitly because the ".part" suffix hides the
		// container from extension sniffing.
		args := []string{
			"-loglevel", "error", "-y",
			"-f", "s16le", "-ar", "44100", "-ac", "2", "-i", "-",
			"-acodec", "alac",
		}
		args = append(args, meta...)
		return append(args, "-f", "ipod", out), nil
	}
	return nil, fmt.Errorf("no encoder arguments for format %q", enc.Format)
}

// PartialPath is where a sink writes before the output is verified.
func PartialPath(path string) string {
	return path + ".part"
}

// IsPartialPath reports whether path names an in-progress output.
func IsPartialPath(path string) bool {
	return filepath.Ext(path) == ".part"
}

package deps

import (
	"fmt"
	"runtime"
	"strings"
)

// encoderPackages maps each encoder-backed format to the binaries that can
// produce it (first match wins) and the distro package that ships them.
var encoderPackages = map[string]struct {
	binaries []string
	pkg      string
}{
	"flac": {binaries: []string{"flac"}, pkg: "flac"},
	"aac":  {binaries: []string{"faac"}, pkg: "faac"},
	"ogg":  {binaries: []string{"oggenc"}, pkg: "vorbis-tools"},
	"opus": {binaries: []string{"opusenc"}, pkg: "opus-tools"},
	"mp3":  {binaries: []string{"lame"}, pkg: "lame"},
	"m4a":  {binaries: []string{"fdkaac"}, pkg: "fdk-aac-encoder"},
	"alac": {binaries: []string{"avconv", "ffmpeg"}, pkg: "libav-tools"},
}

// ResolveEncoder locates the encoder binary for format. An explicit override
// is checked as-is. Formats written directly (wav, pcm) report Available with
// an empty Command.
func ResolveEncoder(format, override string) Status {
	entry, ok := encoderPackages[format]
	if !ok {
		return Status{Name: strings.ToUpper(format), Available: true, Detail: "no encoder required"}
	}
	candidates := entry.binaries
	if o := strings.TrimSpace(override); o != "" {
		candidates = []string{o}
	}

	var status Status
	for _, candidate := range candidates {
		status = checkBinary(Requirement{
			Name:        candidate,
			Command:     candidate,
			Package:     entry.pkg,
			Description: fmt.Sprintf("Required to encode %s output", format),
		})
		if status.Available {
			return status
		}
	}
	return status
}

// InstallHint suggests a package manager command for a missing encoder.
func InstallHint(pkg string) string {
	if strings.TrimSpace(pkg) == "" {
		return ""
	}
	if runtime.GOOS == "darwin" {
		return "brew install " + pkg
	}
	return "sudo apt-get install " + pkg
}

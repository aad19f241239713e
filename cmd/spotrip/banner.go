package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"spotrip/internal/config"
)

const bannerLabelWidth = 20

// printBanner writes the effective settings of a run before it starts.
func printBanner(w io.Writer, cfg *config.Config, color bool) {
	rows := [][2]string{
		{"Encoding output", cfg.Encoding.Describe()},
		{"Spotify bitrate", fmt.Sprintf("%d kbps", cfg.Spotify.Quality)},
		{"Unicode support", unicodeSupport(cfg)},
		{"Output directory", cfg.Paths.OutputDir},
		{"Settings directory", cfg.Paths.SettingsDir},
		{"Format String", cfg.FormatTemplate()},
		{"Overwrite files", yesNo(cfg.Output.Overwrite)},
	}
	for _, row := range rows {
		label := fmt.Sprintf("%-*s", bannerLabelWidth, row[0]+":")
		if color {
			label = text.FgYellow.Sprint(label)
		}
		fmt.Fprintf(w, "%s %s\n", label, row[1])
	}
}

// unicodeSupport checks ASCIIPathOnly first because Finalize also sets ASCII
// for it.
func unicodeSupport(cfg *config.Config) string {
	switch {
	case cfg.Output.ASCIIPathOnly:
		return "Unicode tags, ASCII file path"
	case cfg.Output.ASCII:
		return "ASCII only"
	default:
		return "Yes"
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd())
}

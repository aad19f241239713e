package postactions

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"spotrip/internal/textutil"
	"spotrip/internal/track"
)

const summaryRule = 79

// PrintSummary writes the success and failure lists. Nothing is printed
// unless more than one track was logged.
func (a *Actions) PrintSummary(w io.Writer) {
	a.mu.Lock()
	success := append([]*track.Track(nil), a.success...)
	failure := append([]*track.Track(nil), a.failure...)
	a.mu.Unlock()

	if len(success)+len(failure) <= 1 {
		return
	}
	ascii := a.cfg.Output.ASCII
	color := colorize(w)
	bullet := textutil.Ternary(ascii, " * ", " • ")

	section := func(title string, tracks []*track.Track, fg text.Color) {
		if len(tracks) == 0 {
			return
		}
		heading := fmt.Sprintf("\n%s (%d)\n%s", title, len(tracks), strings.Repeat("-", summaryRule))
		if color {
			heading = fg.Sprint(heading)
		}
		fmt.Fprintln(w, heading)
		for _, t := range tracks {
			fmt.Fprintln(w, bullet+textutil.FoldIf(ascii, t.Label()))
		}
		fmt.Fprintln(w)
	}
	section("Success Summary", success, text.FgGreen)
	section("Failure Summary", failure, text.FgRed)
}

func colorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

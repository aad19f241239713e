package pathfmt

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"spotrip/internal/config"
	"spotrip/internal/services"
	"spotrip/internal/textutil"
	"spotrip/internal/track"
)

var placeholderPattern = regexp.MustCompile(`\{([a-z_]+)(?::(\d+))?\}`)

const unknown = "Unknown"

// Input carries the values a template can reference.
type Input struct {
	URI      string
	Index    int // 0-based position in the source
	Metadata track.Metadata
}

// Renderer turns track values into absolute output paths under a base dir.
type Renderer struct {
	template string
	baseDir  string
	ext      string
	ascii    bool
}

// New builds a renderer from the effective output configuration.
func New(cfg *config.Config) *Renderer {
	return &Renderer{
		template: cfg.FormatTemplate(),
		baseDir:  cfg.Paths.OutputDir,
		ext:      cfg.Encoding.Extension(),
		ascii:    cfg.ASCIIPaths(),
	}
}

// Template returns the format string in use.
func (r *Renderer) Template() string {
	return r.template
}

// BaseDir returns the directory every rendered path lives under.
func (r *Renderer) BaseDir() string {
	return r.baseDir
}

// Path renders the absolute output path for in.
func (r *Renderer) Path(in Input) (string, error) {
	rel, err := Render(r.template, r.ext, in)
	if err != nil {
		return "", err
	}
	rel = textutil.FoldIf(r.ascii, rel)
	full := filepath.Join(r.baseDir, rel)
	within, err := filepath.Rel(r.baseDir, full)
	if err != nil || within == "." || strings.HasPrefix(within, "..") {
		return "", services.Wrap(services.ErrValidation, "pathfmt", "render",
			fmt.Sprintf("path %q escapes output directory", rel), err)
	}
	return full, nil
}

// Validate reports unknown placeholders in template.
func Validate(template string) error {
	if strings.TrimSpace(template) == "" {
		return services.Wrap(services.ErrValidation, "pathfmt", "validate", "format string is empty", nil)
	}
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if _, ok := resolvers[m[1]]; !ok {
			return services.Wrap(services.ErrValidation, "pathfmt", "validate",
				fmt.Sprintf("unknown placeholder %q", m[0]), nil)
		}
	}
	return nil
}

type resolver func(in Input, ext string) (value string, numeric int, isNumeric bool)

var resolvers = map[string]resolver{
	"idx": func(in Input, _ string) (string, int, bool) {
		return "", in.Index + 1, true
	},
	"artist": func(in Input, _ string) (string, int, bool) {
		return in.Metadata.Artist(), 0, false
	},
	"artists": func(in Input, _ string) (string, int, bool) {
		return strings.Join(in.Metadata.Artists, ", "), 0, false
	},
	"album_artist": func(in Input, _ string) (string, int, bool) {
		if v := strings.TrimSpace(in.Metadata.AlbumArtist); v != "" {
			return v, 0, false
		}
		return in.Metadata.Artist(), 0, false
	},
	"album": func(in Input, _ string) (string, int, bool) {
		return in.Metadata.Album, 0, false
	},
	"track_name": func(in Input, _ string) (string, int, bool) {
		return in.Metadata.Title, 0, false
	},
	"track_num": func(in Input, _ string) (string, int, bool) {
		return "", in.Metadata.TrackNumber, true
	},
	"track_idx": func(in Input, _ string) (string, int, bool) {
		return "", in.Metadata.TrackNumber, true
	},
	"disc_num": func(in Input, _ string) (string, int, bool) {
		return "", in.Metadata.DiscNumber, true
	},
	"year": func(in Input, _ string) (string, int, bool) {
		return in.Metadata.Year, 0, false
	},
	"ext": func(_ Input, ext string) (string, int, bool) {
		return ext, 0, false
	},
	"isrc": func(in Input, _ string) (string, int, bool) {
		return in.Metadata.ISRC, 0, false
	},
	"uri": func(in Input, _ string) (string, int, bool) {
		return strings.ReplaceAll(in.URI, ":", "_"), 0, false
	},
}

// Render substitutes every placeholder in template and returns the relative
// path. Each substituted value is sanitized as a single path segment.
func Render(template, ext string, in Input) (string, error) {
	if err := Validate(template); err != nil {
		return "", err
	}
	out := placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		m := placeholderPattern.FindStringSubmatch(token)
		value, number, numeric := resolvers[m[1]](in, ext)
		if numeric {
			width, _ := strconv.Atoi(m[2])
			return fmt.Sprintf("%0*d", width, number)
		}
		value = textutil.SanitizeFileName(value)
		if value == "" {
			return unknown
		}
		return value
	})

	segments := strings.Split(filepath.ToSlash(out), "/")
	kept := segments[:0]
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		kept = append(kept, seg)
	}
	if len(kept) == 0 {
		return "", services.Wrap(services.ErrValidation, "pathfmt", "render", "format string rendered an empty path", nil)
	}
	return filepath.Join(kept...), nil
}

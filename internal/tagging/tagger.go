package tagging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dhowden/tag"

	"spotrip/internal/config"
	"spotrip/internal/fileutil"
	"spotrip/internal/logging"
	"spotrip/internal/services"
	"spotrip/internal/textutil"
	"spotrip/internal/track"
)

// Writer applies tags to a finished output file.
type Writer interface {
	WriteTags(ctx context.Context, path string, meta track.Metadata, cover []byte, asciiMode bool) error
}

// Options mirrors the [output] keys that affect tags.
type Options struct {
	Comment   string
	ID3v23    bool
	CoverFile string
}

// Tagger is the Writer for MP3 and FLAC output.
type Tagger struct {
	opts   Options
	logger *slog.Logger
}

// New returns a tagger configured from cfg.
func New(cfg *config.Config, logger *slog.Logger) *Tagger {
	return &Tagger{
		opts: Options{
			Comment:   cfg.Output.Comment,
			ID3v23:    cfg.Output.ID3v23,
			CoverFile: cfg.Output.CoverFile,
		},
		logger: logging.NewComponentLogger(logger, "tagging"),
	}
}

// fields is the folded, display-ready tag set.
type fields struct {
	title       string
	artist      string
	album       string
	albumArtist string
	year        string
	genre       string
	isrc        string
	comment     string
	trackNumber int
	discNumber  int
}

func buildFields(meta track.Metadata, comment string, ascii bool) fields {
	fold := func(s string) string { return textutil.FoldIf(ascii, strings.TrimSpace(s)) }
	return fields{
		title:       fold(meta.Title),
		artist:      fold(strings.Join(meta.Artists, ", ")),
		album:       fold(meta.Album),
		albumArtist: fold(meta.AlbumArtist),
		year:        meta.Year,
		genre:       fold(strings.Join(meta.Genres, ", ")),
		isrc:        meta.ISRC,
		comment:     fold(comment),
		trackNumber: meta.TrackNumber,
		discNumber:  meta.DiscNumber,
	}
}

// WriteTags writes meta (and cover, when non-empty) into path. Failures are
// ErrTagging; the audio itself is left intact.
func (t *Tagger) WriteTags(ctx context.Context, path string, meta track.Metadata, cover []byte, asciiMode bool) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrAborted, "tagging", "", path, err)
	}
	f := buildFields(meta, t.opts.Comment, asciiMode)
	logger := logging.WithContext(ctx, t.logger)

	embed := cover
	if len(cover) > 0 && strings.TrimSpace(t.opts.CoverFile) != "" {
		if err := t.writeCoverFile(path, cover); err != nil {
			logging.WarnWithContext(logger, "cover file not written", "cover_file_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "track keeps its embedded tags only"),
			)
		}
		embed = nil
	}

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		err = writeID3(path, f, embed, t.opts.ID3v23, asciiMode)
	case ".flac":
		err = writeFLAC(path, f, embed)
	default:
		logger.Debug("tags written by encoder", logging.String("path", path))
		return nil
	}
	if err != nil {
		return services.Wrap(services.ErrTagging, "tagging", "write", path, err)
	}
	if err := verify(path, f.title); err != nil {
		return services.Wrap(services.ErrTagging, "tagging", "verify", path, err)
	}
	logger.Debug("tags written", logging.String("path", path), logging.Bool("cover", len(embed) > 0))
	return nil
}

func (t *Tagger) writeCoverFile(audioPath string, cover []byte) error {
	name := filepath.Base(t.opts.CoverFile)
	target := filepath.Join(filepath.Dir(audioPath), name)
	if fileutil.Exists(target) {
		return nil
	}
	return fileutil.WriteFileAtomic(target, cover, 0o644)
}

// verify re-reads the file and checks the title survived.
func verify(path, wantTitle string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	m, err := tag.ReadFrom(file)
	if err != nil {
		return fmt.Errorf("read back tags: %w", err)
	}
	if wantTitle != "" && m.Title() != wantTitle {
		return fmt.Errorf("title read back as %q, want %q", m.Title(), wantTitle)
	}
	return nil
}

// Read returns the title, artist, album and track number stored in path.
func Read(path string) (title, artist, album string, trackNumber int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return "", "", "", 0, err
	}
	defer file.Close()
	m, err := tag.ReadFrom(file)
	if err != nil {
		return "", "", "", 0, err
	}
	n, _ := m.Track()
	return m.Title(), m.Artist(), m.Album(), n, nil
}

func numberPair(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

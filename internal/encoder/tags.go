package encoder

import (
	"strconv"
	"strings"

	"spotrip/internal/config"
	"spotrip/internal/textutil"
	"spotrip/internal/track"
)

// Tags is the metadata handed to encoders that write tags themselves.
type Tags struct {
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	Genre       string
	Year        string
	Comment     string
	Track       int
	Disc        int
}

// TagsFrom builds encoder tags from resolved track metadata.
func TagsFrom(meta track.Metadata, comment string, ascii bool) Tags {
	fold := func(s string) string { return textutil.FoldIf(ascii, strings.TrimSpace(s)) }
	return Tags{
		Title:       fold(meta.Title),
		Artist:      fold(strings.Join(meta.Artists, ", ")),
		Album:       fold(meta.Album),
		AlbumArtist: fold(meta.AlbumArtist),
		Genre:       fold(strings.Join(meta.Genres, ", ")),
		Year:        meta.Year,
		Comment:     fold(comment),
		Track:       meta.TrackNumber,
		Disc:        meta.DiscNumber,
	}
}

func (t Tags) args(format string) []string {
	var out []string
	flag := func(name, value string) {
		if value != "" {
			out = append(out, name, value)
		}
	}
	num := func(n int) string {
		if n <= 0 {
			return ""
		}
		return strconv.Itoa(n)
	}
	comment := func(name, key, value string) {
		if value != "" {
			out = append(out, name, key+"="+value)
		}
	}

	switch format {
	case config.FormatOgg:
		flag("-t", t.Title)
		flag("-a", t.Artist)
		flag("-l", t.Album)
		flag("-N", num(t.Track))
		flag("-G", t.Genre)
		flag("-d", t.Year)
		comment("-c", "ALBUMARTIST", t.AlbumArtist)
		comment("-c", "DISCNUMBER", num(t.Disc))
		comment("-c", "COMMENT", t.Comment)
	case config.FormatOpus:
		flag("--title", t.Title)
		flag("--artist", t.Artist)
		flag("--album", t.Album)
		flag("--genre", t.Genre)
		flag("--date", t.Year)
		comment("--comment", "TRACKNUMBER", num(t.Track))
		comment("--comment", "ALBUMARTIST", t.AlbumArtist)
		comment("--comment", "DISCNUMBER", num(t.Disc))
		comment("--comment", "COMMENT", t.Comment)
	case config.FormatAAC:
		flag("--title", t.Title)
		flag("--artist", t.Artist)
		flag("--album", t.Album)
		flag("--track", num(t.Track))
		flag("--disc", num(t.Disc))
		flag("--genre", t.Genre)
		flag("--year", t.Year)
		flag("--comment", t.Comment)
	case config.FormatM4A:
		flag("--title", t.Title)
		flag("--artist", t.Artist)
		flag("--album", t.Album)
		flag("--album-artist", t.AlbumArtist)
		flag("--track", num(t.Track))
		flag("--disk", num(t.Disc))
		flag("--genre", t.Genre)
		flag("--date", t.Year)
		flag("--comment", t.Comment)
	case config.FormatALAC:
		comment("-metadata", "title", t.Title)
		comment("-metadata", "artist", t.Artist)
		comment("-metadata", "album", t.Album)
		comment("-metadata", "album_artist", t.AlbumArtist)
		comment("-metadata", "track", num(t.Track))
		comment("-metadata", "disc", num(t.Disc))
		comment("-metadata", "genre", t.Genre)
		comment("-metadata", "date", t.Year)
		comment("-metadata", "comment", t.Comment)
	}
	return out
}

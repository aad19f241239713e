package tagging

import (
	"net/http"

	"github.com/bogem/id3v2/v2"
)

func writeID3(path string, f fields, cover []byte, v23, ascii bool) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	defer tag.Close()

	enc := id3v2.EncodingUTF8
	switch {
	case ascii:
		enc = id3v2.EncodingISO
	case v23:
		// ID3v2.3 has no UTF-8 text encoding.
		enc = id3v2.EncodingUTF16
	}
	if v23 {
		tag.SetVersion(3)
	} else {
		tag.SetVersion(4)
	}
	tag.SetDefaultEncoding(enc)

	tag.SetTitle(f.title)
	tag.SetArtist(f.artist)
	tag.SetAlbum(f.album)
	if f.year != "" {
		tag.SetYear(f.year)
	}
	if f.genre != "" {
		tag.SetGenre(f.genre)
	}
	addText := func(description, value string) {
		if value == "" {
			return
		}
		tag.AddTextFrame(tag.CommonID(description), enc, value)
	}
	addText("Band/Orchestra/Accompaniment", f.albumArtist)
	addText("Track number/Position in set", numberPair(f.trackNumber))
	addText("Part of a set", numberPair(f.discNumber))
	addText("ISRC", f.isrc)

	if f.comment != "" {
		tag.AddCommentFrame(id3v2.CommentFrame{
			Encoding:    enc,
			Language:    "eng",
			Description: "",
			Text:        f.comment,
		})
	}
	if len(cover) > 0 {
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    enc,
			MimeType:    http.DetectContentType(cover),
			PictureType: id3v2.PTFrontCover,
			Description: "Front cover",
			Picture:     cover,
		})
	}
	return tag.Save()
}

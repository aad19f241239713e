package tagging

import (
	"net/http"

	flac "github.com/go-flac/go-flac"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
)

func writeFLAC(path string, f fields, cover []byte) error {
	file, err := flac.ParseFile(path)
	if err != nil {
		return err
	}

	// Replace the encoder's comment block and any earlier cover.
	kept := file.Meta[:0]
	for _, block := range file.Meta {
		if block.Type == flac.VorbisComment || (len(cover) > 0 && block.Type == flac.Picture) {
			continue
		}
		kept = append(kept, block)
	}
	file.Meta = kept

	comments := flacvorbis.New()
	add := func(field, value string) error {
		if value == "" {
			return nil
		}
		return comments.Add(field, value)
	}
	for _, kv := range [][2]string{
		{flacvorbis.FIELD_TITLE, f.title},
		{flacvorbis.FIELD_ARTIST, f.artist},
		{flacvorbis.FIELD_ALBUM, f.album},
		{"ALBUMARTIST", f.albumArtist},
		{flacvorbis.FIELD_TRACKNUMBER, numberPair(f.trackNumber)},
		{"DISCNUMBER", numberPair(f.discNumber)},
		{flacvorbis.FIELD_DATE, f.year},
		{flacvorbis.FIELD_GENRE, f.genre},
		{flacvorbis.FIELD_ISRC, f.isrc},
		{"COMMENT", f.comment},
	} {
		if err := add(kv[0], kv[1]); err != nil {
			return err
		}
	}
	commentBlock := comments.Marshal()
	file.Meta = append(file.Meta, &commentBlock)

	if len(cover) > 0 {
		picture, err := flacpicture.NewFromImageData(flacpicture.PictureTypeFrontCover, "Front cover", cover, http.DetectContentType(cover))
		if err != nil {
			return err
		}
		pictureBlock := picture.Marshal()
		file.Meta = append(file.Meta, &pictureBlock)
	}
	return file.Save(path)
}

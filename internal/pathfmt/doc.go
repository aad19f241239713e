// Package pathfmt renders output file paths from a format string such as
// "{album_artist}/{album}/{artist} - {track_name}.{ext}".
//
// Slashes in the template create directories; slashes inside substituted
// values never do. Numeric placeholders accept a zero-pad width, as in
// "{idx:3}".
package pathfmt

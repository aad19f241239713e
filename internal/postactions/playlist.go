package postactions

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"spotrip/internal/fileutil"
	"spotrip/internal/logging"
	"spotrip/internal/services"
	"spotrip/internal/session"
	"spotrip/internal/textutil"
	"spotrip/internal/track"
)

// CreatePlaylistFiles writes the configured m3u and wpl files for a playlist
// source and returns their paths. Only tracks whose output exists are listed.
func (a *Actions) CreatePlaylistFiles(src session.Source, tracks []*track.Track) ([]string, error) {
	if !src.IsPlaylist() || (!a.cfg.Playlist.M3U && !a.cfg.Playlist.WPL) {
		return nil, nil
	}
	base := a.cfg.Paths.OutputDir
	entries := a.playlistEntries(base, tracks)
	name := textutil.SanitizeFileName(textutil.ToASCII(textutil.Ternary(src.Name != "", src.Name, src.ID)))

	var written []string
	if a.cfg.Playlist.M3U {
		path := filepath.Join(base, name+".m3u")
		a.logger.Info("creating playlist m3u file", logging.String("path", path))
		if err := fileutil.WriteFileAtomic(path, renderM3U(entries), 0o644); err != nil {
			return written, fmt.Errorf("write m3u: %w", err)
		}
		written = append(written, path)
	}
	if a.cfg.Playlist.WPL {
		path := filepath.Join(base, name+".wpl")
		a.logger.Info("creating playlist wpl file", logging.String("path", path))
		author := ""
		if a.playlists != nil {
			author = a.playlists.User()
		}
		data, err := renderWPL(src.Name, author, entries)
		if err != nil {
			return written, fmt.Errorf("render wpl: %w", err)
		}
		if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
			return written, fmt.Errorf("write wpl: %w", err)
		}
		written = append(written, path)
	}
	return written, nil
}

// playlistEntries lists existing outputs relative to base, in source order.
func (a *Actions) playlistEntries(base string, tracks []*track.Track) []string {
	existing := lo.Filter(tracks, func(t *track.Track, _ int) bool {
		return t.OutputPath != "" && fileutil.Exists(t.OutputPath)
	})
	return lo.Map(existing, func(t *track.Track, _ int) string {
		rel, err := filepath.Rel(base, t.OutputPath)
		if err != nil {
			rel = t.OutputPath
		}
		return textutil.FoldIf(a.cfg.Output.ASCII, filepath.ToSlash(rel))
	})
}

func renderM3U(entries []string) []byte {
	var b bytes.Buffer
	for _, entry := range entries {
		b.WriteString(entry)
		b.WriteByte('\n')
	}
	return b.Bytes()
}

func renderWPL(title, author string, entries []string) ([]byte, error) {
	var b bytes.Buffer
	escape := func(s string) error { return xml.EscapeText(&b, []byte(s)) }

	b.WriteString("<?wpl version=\"1.0\"?>\n<smil>\n\t<head>\n")
	b.WriteString("\t\t<meta name=\"Generator\" content=\"spotrip\"/>\n")
	b.WriteString("\t\t<meta name=\"ItemCount\" content=\"" + strconv.Itoa(len(entries)) + "\"/>\n")
	b.WriteString("\t\t<author>")
	if err := escape(author); err != nil {
		return nil, err
	}
	b.WriteString("</author>\n\t\t<title>")
	if err := escape(title); err != nil {
		return nil, err
	}
	b.WriteString("</title>\n\t</head>\n\t<body>\n\t\t<seq>\n")
	for _, entry := range entries {
		b.WriteString("\t\t\t<media src=\"")
		if err := escape(entry); err != nil {
			return nil, err
		}
		b.WriteString("\"/>\n")
	}
	b.WriteString("\t\t</seq>\n\t</body>\n</smil>\n")
	return b.Bytes(), nil
}

// QueueRemoveFromPlaylist schedules position idx of src for removal once the
// run ends. Nothing is queued unless removal is enabled, src is a playlist
// and the logged-in user owns it.
func (a *Actions) QueueRemoveFromPlaylist(src *session.Source, idx int) {
	if !a.cfg.Playlist.RemoveFromPlaylist {
		return
	}
	if src == nil || !src.IsPlaylist() {
		logging.WarnWithContext(a.logger, "no playlist specified to remove this track from", "playlist_remove_without_playlist",
			logging.String(logging.FieldErrorHint, "use --remove-from-playlist with a playlist link"),
		)
		return
	}
	if a.playlists == nil || !a.playlists.OwnsPlaylist(*src) {
		user := ""
		if a.playlists != nil {
			user = a.playlists.User()
		}
		logging.WarnWithContext(a.logger, "track will not be removed from playlist", "playlist_remove_not_owner",
			logging.String("playlist", src.Name),
			logging.String("user", user),
			logging.String(logging.FieldErrorHint, "only the playlist owner can remove tracks"),
		)
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.removals {
		if r.src.URI == src.URI {
			r.indices = append(r.indices, idx)
			return
		}
	}
	a.removals = append(a.removals, &removal{src: src, indices: []int{idx}})
}

// RemoveTracksFromPlaylist removes the queued positions, one request per
// playlist. The queue is drained even when a request fails.
func (a *Actions) RemoveTracksFromPlaylist(ctx context.Context) error {
	a.mu.Lock()
	pending := a.removals
	a.removals = nil
	a.mu.Unlock()

	if !a.cfg.Playlist.RemoveFromPlaylist {
		return nil
	}
	var errs []error
	for _, r := range pending {
		indices := lo.Uniq(r.indices)
		if len(indices) == 0 {
			continue
		}
		a.logger.Info("removing successfully ripped tracks from playlist",
			logging.String("playlist", r.src.Name),
			logging.Int("count", len(indices)),
		)
		if err := a.playlists.RemoveFromPlaylist(ctx, r.src.URI, indices); err != nil {
			errs = append(errs, services.Wrap(services.ErrExternalTool, "postactions", "remove from playlist", r.src.Name, err))
		}
	}
	return errors.Join(errs...)
}

// SyncPlaylist removes files an earlier rip of the same playlist produced
// that the current listing no longer points at: tracks dropped from the
// playlist and tracks whose rendered path moved. previous and current map
// track URI to output path. It returns the removed paths.
func (a *Actions) SyncPlaylist(previous, current map[string]string) ([]string, error) {
	if !a.cfg.Playlist.Sync || len(previous) == 0 {
		return nil, nil
	}
	keep := lo.SliceToMap(lo.Values(current), func(p string) (string, struct{}) {
		return filepath.Clean(p), struct{}{}
	})
	var removed []string
	for _, uri := range sortedKeys(previous) {
		path := previous[uri]
		if _, ok := keep[filepath.Clean(path)]; ok {
			continue
		}
		if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(a.cfg.Paths.OutputDir)+string(filepath.Separator)) {
			continue
		}
		ok, err := fileutil.RemoveIfExists(path)
		if err != nil {
			return removed, fmt.Errorf("sync playlist: %w", err)
		}
		if ok {
			a.logger.Info("removed file no longer in playlist",
				logging.TrackURI(uri),
				logging.String("path", path),
			)
			removed = append(removed, path)
		}
	}
	return removed, nil
}

func sortedKeys(m map[string]string) []string {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}

package ripping

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"spotrip/internal/fileutil"
	"spotrip/internal/logging"
	"spotrip/internal/services"
	"spotrip/internal/session"
	"spotrip/internal/track"
)

// expand turns the user's arguments into sources and queued tracks. An
// argument that is not a Spotify URI but names an existing file is read as a
// list of URIs, one per line. Sources that cannot be expanded are skipped
// unless the failure is fatal for the whole run.
func (e *Engine) expand(ctx context.Context, args []string) ([]*session.Source, []*item, error) {
	logger := logging.WithContext(ctx, e.logger)

	var uris []string
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		if _, err := session.ParseURI(arg); err == nil {
			uris = append(uris, arg)
			continue
		}
		if fileutil.Exists(arg) {
			listed, err := readURIList(arg)
			if err != nil {
				logging.WarnWithContext(logger, "URI list not readable", "uri_list_unreadable",
					logging.String("path", arg),
					logging.Error(err),
				)
				continue
			}
			logger.Info("read URI list", logging.String("path", arg), logging.Int("uris", len(listed)))
			uris = append(uris, listed...)
			continue
		}
		logging.WarnWithContext(logger, "argument is neither a Spotify URI nor a file", "invalid_uri",
			logging.String("argument", arg),
			logging.String(logging.FieldErrorHint, "use spotify:<type>:<id> or an open.spotify.com link"),
		)
	}

	var (
		sources []*session.Source
		items   []*item
	)
	for _, uri := range uris {
		if e.aborted.Load() || ctx.Err() != nil {
			return sources, items, nil
		}
		src, err := e.session.Expand(ctx, uri)
		if err != nil {
			if services.IsFatal(err) {
				return sources, items, err
			}
			logging.WarnWithContext(logger, "source skipped", "expand_failed",
				logging.String("uri", uri),
				logging.Error(err),
				logging.String(logging.FieldImpact, "no tracks queued for this source"),
			)
			continue
		}
		sources = append(sources, &src)
		for _, entry := range src.Entries {
			t := track.New(entry.URI, entry.Index)
			t.SetHook(e.observe)
			items = append(items, &item{track: t, source: &src})
		}
		logger.Debug("source expanded",
			logging.String("uri", src.URI),
			logging.String("kind", string(src.Kind)),
			logging.String("name", src.Name),
			logging.Int("tracks", len(src.Entries)),
		)
	}
	return sources, items, nil
}

// readURIList reads one URI per line, skipping blank lines and # comments.
func readURIList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var uris []string
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if _, err := session.ParseURI(text); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		uris = append(uris, text)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return uris, nil
}

func (e *Engine) observe(tr track.Transition) {
	attrs := []logging.Attr{
		logging.TrackURI(tr.URI),
		logging.Int(logging.FieldTrackIndex, tr.Index),
		logging.String("from", string(tr.From)),
		logging.String(logging.FieldState, string(tr.To)),
	}
	if tr.Err != nil {
		attrs = append(attrs, logging.Error(tr.Err))
	}
	e.logger.Debug("track state changed", logging.Args(attrs...)...)
}

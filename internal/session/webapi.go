package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"spotrip/internal/config"
	"spotrip/internal/logging"
	"spotrip/internal/services"
	"spotrip/internal/track"
)

// WebAPI is the Catalog backed by the Spotify Web API.
type WebAPI struct {
	cfg     config.Spotify
	dirs    config.Paths
	logger  *slog.Logger
	limiter *rate.Limiter

	apiURL   string
	tokenURL string
	base     *http.Client

	mu          sync.Mutex
	client      *spotify.Client
	tokens      oauth2.TokenSource
	userAuth    bool
	user        string
	userID      string
	playlists   map[string]playlistSnapshot
	genresCache map[string][]string
}

type playlistSnapshot struct {
	snapshotID string
	entries    []Entry
}

// WebAPIOption customises a WebAPI.
type WebAPIOption func(*WebAPI)

// WithEndpoints points the client at a different API and token server.
func WithEndpoints(apiURL, tokenURL string) WebAPIOption {
	return func(w *WebAPI) {
		w.apiURL = apiURL
		w.tokenURL = tokenURL
	}
}

// WithHTTPClient sets the client used for token exchange and API calls.
func WithHTTPClient(client *http.Client) WebAPIOption {
	return func(w *WebAPI) {
		w.base = client
	}
}

// NewWebAPI constructs an unauthenticated catalog.
func NewWebAPI(cfg *config.Config, logger *slog.Logger, opts ...WebAPIOption) *WebAPI {
	rps := cfg.Spotify.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	w := &WebAPI{
		cfg:         cfg.Spotify,
		dirs:        cfg.Paths,
		logger:      logging.NewComponentLogger(logger, "spotify"),
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
		tokenURL:    spotifyauth.TokenURL,
		playlists:   make(map[string]playlistSnapshot),
		genresCache: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// limitedTransport throttles every request through the shared limiter.
type limitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

// Login authenticates with a stored user token when one exists, otherwise
// with client credentials. Failure is always ErrAuth.
func (w *WebAPI) Login(ctx context.Context, creds Credentials) error {
	user := strings.TrimSpace(creds.User)
	if creds.UseLast {
		user = LoadLastUser(w.dirs.SettingsDir)
		if user == "" {
			return services.Wrap(services.ErrAuth, "spotify", "login", "no stored login to reuse", nil)
		}
	}
	if user == "" {
		user = w.cfg.User
	}
	if w.cfg.ClientID == "" || w.cfg.ClientSecret == "" {
		return services.Wrap(services.ErrAuth, "spotify", "login",
			"client_id and client_secret are required (set SPOTIFY_ID and SPOTIFY_SECRET)", nil)
	}

	// Token refreshes outlive the login call.
	clientCtx := context.WithoutCancel(ctx)
	if w.base != nil {
		clientCtx = context.WithValue(clientCtx, oauth2.HTTPClient, w.base)
	}

	stored, err := LoadToken(w.cfg.TokenFile)
	if err != nil {
		w.logger.Warn("ignoring unreadable token file",
			logging.String("path", w.cfg.TokenFile),
			logging.Error(err),
			logging.String(logging.FieldEventType, "token_unreadable"),
		)
	}

	var source oauth2.TokenSource
	if stored != nil {
		conf := &oauth2.Config{
			ClientID:     w.cfg.ClientID,
			ClientSecret: w.cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{AuthURL: spotifyauth.AuthURL, TokenURL: w.tokenURL},
		}
		source = conf.TokenSource(clientCtx, stored)
	} else {
		cc := &clientcredentials.Config{
			ClientID:     w.cfg.ClientID,
			ClientSecret: w.cfg.ClientSecret,
			TokenURL:     w.tokenURL,
		}
		source = cc.TokenSource(clientCtx)
	}
	if _, err := source.Token(); err != nil {
		return services.Wrap(services.ErrAuth, "spotify", "login", "token exchange failed", err)
	}

	httpClient := oauth2.NewClient(clientCtx, source)
	httpClient.Transport = limitedTransport{base: httpClient.Transport, limiter: w.limiter}
	var clientOpts []spotify.ClientOption
	if w.apiURL != "" {
		clientOpts = append(clientOpts, spotify.WithBaseURL(w.apiURL))
	}
	client := spotify.New(httpClient, clientOpts...)

	userID := ""
	if stored != nil {
		me, err := client.CurrentUser(ctx)
		if err != nil {
			wrapped := classify("current user", "", err)
			return services.Wrap(services.ErrAuth, "spotify", "login", "", wrapped)
		}
		userID = me.ID
		// The token decides who is logged in; a configured name is only a
		// label for client-credential sessions.
		account := lo.Ternary(me.DisplayName != "", me.DisplayName, me.ID)
		if user != "" && user != account && user != me.ID {
			w.logger.Info("stored token belongs to another account",
				logging.String("requested", user),
				logging.String("account", account),
			)
		}
		user = account
	}

	w.mu.Lock()
	w.client = client
	w.tokens = source
	w.userAuth = stored != nil
	w.user = user
	w.userID = userID
	w.mu.Unlock()

	if err := SaveLastUser(w.dirs.SettingsDir, user); err != nil {
		w.logger.Warn("could not remember login", logging.Error(err),
			logging.String(logging.FieldEventType, "last_user_write_failed"))
	}
	w.logger.Info("logged in",
		logging.String("user", user),
		logging.Bool("user_token", stored != nil),
	)
	return nil
}

// User returns the logged-in account name.
func (w *WebAPI) User() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.user
}

func (w *WebAPI) api() (*spotify.Client, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client == nil {
		return nil, services.Wrap(services.ErrAuth, "spotify", "", "not logged in", nil)
	}
	return w.client, nil
}

// marketOptions returns the market request option. "from_token" only works
// with a user token and is dropped otherwise.
func (w *WebAPI) marketOptions() []spotify.RequestOption {
	market := strings.TrimSpace(w.cfg.Market)
	if market == "" || (market == "from_token" && !w.userAuth) {
		return nil
	}
	return []spotify.RequestOption{spotify.Market(market)}
}

// Resolve fetches display and tag metadata for a track URI.
func (w *WebAPI) Resolve(ctx context.Context, uri string) (track.Metadata, error) {
	parsed, err := ParseURI(uri)
	if err != nil {
		return track.Metadata{}, services.Wrap(services.ErrTrackUnavailable, "spotify", "resolve", "", err)
	}
	if parsed.Kind != KindTrack {
		return track.Metadata{}, services.Wrap(services.ErrTrackUnavailable, "spotify", "resolve",
			fmt.Sprintf("%s is not a track", uri), nil)
	}
	client, err := w.api()
	if err != nil {
		return track.Metadata{}, err
	}

	full, err := client.GetTrack(ctx, spotify.ID(parsed.ID), w.marketOptions()...)
	if err != nil {
		return track.Metadata{}, classify("get track", uri, err)
	}
	if full.IsPlayable != nil && !*full.IsPlayable {
		return track.Metadata{}, services.Wrap(services.ErrTrackUnavailable, "spotify", "resolve",
			fmt.Sprintf("%s is not playable in this market", uri), nil)
	}

	meta := metadataFromTrack(full)
	meta.Genres = w.genres(ctx, client, full)
	return meta, nil
}

func metadataFromTrack(full *spotify.FullTrack) track.Metadata {
	meta := track.Metadata{
		Artists: lo.Map(full.Artists, func(a spotify.SimpleArtist, _ int) string {
			return a.Name
		}),
		Title:       full.Name,
		Album:       full.Album.Name,
		TrackNumber: int(full.TrackNumber),
		DiscNumber:  int(full.DiscNumber),
		Duration:    time.Duration(full.Duration) * time.Millisecond,
		ISRC:        full.ExternalIDs["isrc"],
	}
	if len(full.Album.Artists) > 0 {
		meta.AlbumArtist = full.Album.Artists[0].Name
	}
	if date := full.Album.ReleaseDate; len(date) >= 4 {
		meta.Year = date[:4]
	}
	if len(full.Album.Images) > 0 {
		largest := lo.MaxBy(full.Album.Images, func(a, b spotify.Image) bool {
			return a.Width > b.Width
		})
		meta.CoverURL = largest.URL
	}
	return meta
}

// genres looks up artist or album genres when configured. Lookup failures
// only cost the genre tag.
func (w *WebAPI) genres(ctx context.Context, client *spotify.Client, full *spotify.FullTrack) []string {
	var key string
	var fetch func() ([]string, error)
	switch w.cfg.Genres {
	case "artist":
		if len(full.Artists) == 0 {
			return nil
		}
		id := full.Artists[0].ID
		key = "artist:" + string(id)
		fetch = func() ([]string, error) {
			artist, err := client.GetArtist(ctx, id)
			if err != nil {
				return nil, err
			}
			return artist.Genres, nil
		}
	case "album":
		id := full.Album.ID
		key = "album:" + string(id)
		fetch = func() ([]string, error) {
			album, err := client.GetAlbum(ctx, id)
			if err != nil {
				return nil, err
			}
			return album.Genres, nil
		}
	default:
		return nil
	}

	w.mu.Lock()
	cached, ok := w.genresCache[key]
	w.mu.Unlock()
	if ok {
		return cached
	}
	genres, err := fetch()
	if err != nil {
		w.logger.Debug("genre lookup failed", logging.String("key", key), logging.Error(err))
		return nil
	}
	w.mu.Lock()
	w.genresCache[key] = genres
	w.mu.Unlock()
	return genres
}

// Expand lists the tracks a URI refers to.
func (w *WebAPI) Expand(ctx context.Context, uri string) (Source, error) {
	parsed, err := ParseURI(uri)
	if err != nil {
		return Source{}, err
	}
	client, err := w.api()
	if err != nil {
		return Source{}, err
	}
	src := Source{Kind: parsed.Kind, URI: parsed.String(), ID: parsed.ID}

	switch parsed.Kind {
	case KindTrack:
		src.Entries = []Entry{{URI: parsed.String(), Index: 0}}

	case KindAlbum:
		album, err := client.GetAlbum(ctx, spotify.ID(parsed.ID), w.marketOptions()...)
		if err != nil {
			return Source{}, classify("get album", uri, err)
		}
		src.Name = album.Name
		page := album.Tracks
		for {
			for _, t := range page.Tracks {
				src.Entries = append(src.Entries, Entry{URI: string(t.URI), Index: len(src.Entries)})
			}
			if err := client.NextPage(ctx, &page); err != nil {
				if err == spotify.ErrNoMorePages {
					break
				}
				return Source{}, classify("album pagination", uri, err)
			}
		}

	case KindPlaylist:
		playlist, err := client.GetPlaylist(ctx, spotify.ID(parsed.ID), w.marketOptions()...)
		if err != nil {
			return Source{}, classify("get playlist", uri, err)
		}
		src.Name = playlist.Name
		src.OwnerID = playlist.Owner.ID
		page := playlist.Tracks
		position := 0
		for {
			for _, item := range page.Tracks {
				if item.Track.ID != "" && !item.IsLocal {
					src.Entries = append(src.Entries, Entry{URI: string(item.Track.URI), Index: position})
				}
				position++
			}
			if err := client.NextPage(ctx, &page); err != nil {
				if err == spotify.ErrNoMorePages {
					break
				}
				return Source{}, classify("playlist pagination", uri, err)
			}
		}
		w.mu.Lock()
		w.playlists[parsed.ID] = playlistSnapshot{snapshotID: playlist.SnapshotID, entries: src.Entries}
		w.mu.Unlock()

	case KindArtist:
		artist, err := client.GetArtist(ctx, spotify.ID(parsed.ID))
		if err != nil {
			return Source{}, classify("get artist", uri, err)
		}
		src.Name = artist.Name
		albums, err := w.artistAlbums(ctx, client, spotify.ID(parsed.ID))
		if err != nil {
			return Source{}, classify("artist albums", uri, err)
		}
		for _, album := range albums {
			page, err := client.GetAlbumTracks(ctx, album.ID, append(w.marketOptions(), spotify.Limit(50))...)
			if err != nil {
				return Source{}, classify("album tracks", string(album.URI), err)
			}
			for {
				for _, t := range page.Tracks {
					src.Entries = append(src.Entries, Entry{URI: string(t.URI), Index: len(src.Entries)})
				}
				if err := client.NextPage(ctx, page); err != nil {
					if err == spotify.ErrNoMorePages {
						break
					}
					return Source{}, classify("album tracks pagination", string(album.URI), err)
				}
			}
		}
		w.logger.Debug("expanded artist",
			logging.String("artist", artist.Name),
			logging.Int("albums", len(albums)),
			logging.Int("tracks", len(src.Entries)),
		)
	}
	return src, nil
}

// artistAlbums lists the artist's albums, singles and compilations, plus the
// albums it appears on unless exclude_appears_on is set. Albums listed once
// per market are collapsed by ID.
func (w *WebAPI) artistAlbums(ctx context.Context, client *spotify.Client, id spotify.ID) ([]spotify.SimpleAlbum, error) {
	groups := []spotify.AlbumType{spotify.AlbumTypeAlbum, spotify.AlbumTypeSingle, spotify.AlbumTypeCompilation}
	if !w.cfg.ExcludeAppearsOn {
		groups = append(groups, spotify.AlbumTypeAppearsOn)
	}
	page, err := client.GetArtistAlbums(ctx, id, groups, append(w.marketOptions(), spotify.Limit(50))...)
	if err != nil {
		return nil, err
	}
	var albums []spotify.SimpleAlbum
	for {
		albums = append(albums, page.Albums...)
		if err := client.NextPage(ctx, page); err != nil {
			if err == spotify.ErrNoMorePages {
				break
			}
			return nil, err
		}
	}
	return lo.UniqBy(albums, func(a spotify.SimpleAlbum) spotify.ID { return a.ID }), nil
}

// OwnsPlaylist reports whether the logged-in user owns src.
func (w *WebAPI) OwnsPlaylist(src Source) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return src.IsPlaylist() && w.userID != "" && strings.EqualFold(w.userID, src.OwnerID)
}

// RemoveFromPlaylist deletes the tracks at the given playlist positions,
// pinned to the snapshot seen during Expand.
func (w *WebAPI) RemoveFromPlaylist(ctx context.Context, playlistURI string, indices []int) error {
	if len(indices) == 0 {
		return nil
	}
	parsed, err := ParseURI(playlistURI)
	if err != nil {
		return err
	}
	if parsed.Kind != KindPlaylist {
		return services.Wrap(services.ErrValidation, "spotify", "remove tracks", playlistURI+" is not a playlist", nil)
	}
	client, err := w.api()
	if err != nil {
		return err
	}
	w.mu.Lock()
	snap, ok := w.playlists[parsed.ID]
	userAuth := w.userAuth
	w.mu.Unlock()
	if !userAuth {
		return services.Wrap(services.ErrAuth, "spotify", "remove tracks",
			"modifying playlists requires a user token (run `spotrip login`)", nil)
	}
	if !ok {
		return services.Wrap(services.ErrValidation, "spotify", "remove tracks", "playlist was not expanded in this run", nil)
	}

	byIndex := lo.SliceToMap(snap.entries, func(e Entry) (int, string) { return e.Index, e.URI })
	removals := make([]spotify.TrackToRemove, 0, len(indices))
	for _, idx := range lo.Uniq(indices) {
		uri, ok := byIndex[idx]
		if !ok {
			continue
		}
		parsedTrack, err := ParseURI(uri)
		if err != nil {
			continue
		}
		removals = append(removals, spotify.NewTrackToRemove(parsedTrack.ID, []int{idx}))
	}
	if len(removals) == 0 {
		return nil
	}
	if _, err := client.RemoveTracksFromPlaylistOpt(ctx, spotify.ID(parsed.ID), removals, snap.snapshotID); err != nil {
		return classify("remove tracks", playlistURI, err)
	}
	w.logger.Info("removed tracks from playlist",
		logging.String("playlist", playlistURI),
		logging.Int("count", len(removals)),
	)
	return nil
}

// Close persists a refreshed user token.
func (w *WebAPI) Close() error {
	w.mu.Lock()
	tokens, userAuth := w.tokens, w.userAuth
	w.mu.Unlock()
	if tokens == nil || !userAuth {
		return nil
	}
	tok, err := tokens.Token()
	if err != nil {
		return nil
	}
	if err := SaveToken(w.cfg.TokenFile, tok); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

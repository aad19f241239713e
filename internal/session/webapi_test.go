package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"spotrip/internal/config"
	"spotrip/internal/services"
	"spotrip/internal/session"
	"spotrip/internal/testsupport"
)

func trackJSON(id, name string, playable bool) map[string]any {
	return map[string]any{
		"id":           id,
		"name":         name,
		"uri":          "spotify:track:" + id,
		"duration_ms":  2000,
		"track_number": 3,
		"disc_number":  1,
		"is_playable":  playable,
		"artists":      []any{map[string]any{"id": "a1", "name": "Artist"}},
		"external_ids": map[string]any{"isrc": "ISRC" + id},
		"album": map[string]any{
			"id":           "al1",
			"name":         "Album",
			"release_date": "2001-05-01",
			"artists":      []any{map[string]any{"id": "a2", "name": "Album Artist"}},
			"images": []any{
				map[string]any{"url": "http://img/small", "width": 64, "height": 64},
				map[string]any{"url": "http://img/big", "width": 640, "height": 640},
			},
		},
	}
}

type fakeAPI struct {
	mu          sync.Mutex
	tokenStatus int
	removed     []map[string]any
	groups      []string
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	notFound := func(w http.ResponseWriter) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]any{"status": 404, "message": "non existing id"}})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status := f.tokenStatus
		f.mu.Unlock()
		if status != 0 {
			writeJSON(w, status, map[string]any{"error": "invalid_client"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "abc", "token_type": "bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/v1/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "owner", "display_name": "Owner"})
	})
	mux.HandleFunc("/v1/tracks/", func(w http.ResponseWriter, r *http.Request) {
		switch id := strings.TrimPrefix(r.URL.Path, "/v1/tracks/"); id {
		case "t1", "t2":
			writeJSON(w, http.StatusOK, trackJSON(id, "Song "+id, true))
		case "blocked":
			writeJSON(w, http.StatusOK, trackJSON(id, "Blocked", false))
		case "flaky":
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": map[string]any{"status": 502, "message": "bad gateway"}})
		default:
			notFound(w)
		}
	})
	mux.HandleFunc("/v1/playlists/p1/tracks", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "unexpected", http.StatusMethodNotAllowed)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.removed = append(f.removed, body)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"snapshot_id": "snap2"})
	})
	mux.HandleFunc("/v1/playlists/p1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":          "p1",
			"name":        "Road Trip",
			"snapshot_id": "snap1",
			"owner":       map[string]any{"id": "owner"},
			"tracks": map[string]any{
				"items": []any{
					map[string]any{"is_local": false, "track": trackJSON("t1", "Song t1", true)},
					map[string]any{"is_local": true, "track": map[string]any{"id": "", "name": "local file"}},
					map[string]any{"is_local": false, "track": trackJSON("t2", "Song t2", true)},
				},
				"limit":  100,
				"offset": 0,
				"total":  3,
				"next":   nil,
			},
		})
	})
	mux.HandleFunc("/v1/artists/ar1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "ar1", "name": "Band", "uri": "spotify:artist:ar1"})
	})
	mux.HandleFunc("/v1/artists/ar1/albums", func(w http.ResponseWriter, r *http.Request) {
		groups := r.URL.Query().Get("include_groups")
		f.mu.Lock()
		f.groups = append(f.groups, groups)
		f.mu.Unlock()
		album := func(id string) map[string]any {
			return map[string]any{"id": id, "name": "Album " + id, "uri": "spotify:album:" + id}
		}
		if r.URL.Query().Get("offset") == "" {
			writeJSON(w, http.StatusOK, map[string]any{
				"items": []any{album("al1"), album("al2")},
				"total": 3,
				"next":  "http://" + r.Host + r.URL.Path + "?offset=2&include_groups=" + groups,
			})
			return
		}
		// Albums repeat across markets.
		items := []any{album("al2")}
		if strings.Contains(groups, "appears_on") {
			items = append(items, album("al3"))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "offset": 2, "total": 3, "next": nil})
	})
	mux.HandleFunc("/v1/albums/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/albums/"), "/tracks")
		simple := func(n string) map[string]any {
			return map[string]any{"id": n, "name": "Song " + n, "uri": "spotify:track:" + n}
		}
		page := map[string]any{"next": nil}
		switch {
		case id == "al1" && r.URL.Query().Get("offset") == "":
			page["items"] = []any{simple("a1"), simple("a2")}
			page["next"] = "http://" + r.Host + r.URL.Path + "?offset=2"
		case id == "al1":
			page["items"] = []any{simple("a3")}
		case id == "al2":
			page["items"] = []any{simple("b1")}
		case id == "al3":
			page["items"] = []any{simple("c1")}
		default:
			notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, page)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		t.Logf("unhandled request %s %s", r.Method, r.URL.Path)
		notFound(w)
	})
	return mux
}

func newCatalog(t *testing.T, f *fakeAPI, mutate func(*config.Config)) *session.WebAPI {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	cfg := testsupport.NewConfig(t)
	cfg.Spotify.ClientID = "id"
	cfg.Spotify.ClientSecret = "secret"
	cfg.Spotify.RequestsPerSecond = 1000
	if mutate != nil {
		mutate(cfg)
	}
	return session.NewWebAPI(cfg, nil, session.WithEndpoints(srv.URL+"/v1/", srv.URL+"/api/token"))
}

func TestWebAPIResolve(t *testing.T) {
	catalog := newCatalog(t, &fakeAPI{}, nil)
	ctx := context.Background()
	if err := catalog.Login(ctx, session.Credentials{User: "tester"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if catalog.User() != "tester" {
		t.Fatalf("User = %q", catalog.User())
	}

	meta, err := catalog.Resolve(ctx, "spotify:track:t1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if meta.Title != "Song t1" || meta.Artist() != "Artist" || meta.AlbumArtist != "Album Artist" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	if meta.Year != "2001" || meta.TrackNumber != 3 || meta.ISRC != "ISRCt1" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	if meta.Duration != 2*time.Second || meta.CoverURL != "http://img/big" {
		t.Fatalf("unexpected duration/cover %s %q", meta.Duration, meta.CoverURL)
	}
}

func TestWebAPIResolveErrorKinds(t *testing.T) {
	catalog := newCatalog(t, &fakeAPI{}, nil)
	ctx := context.Background()
	if err := catalog.Login(ctx, session.Credentials{}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	tests := map[string]error{
		"spotify:track:missing": services.ErrTrackUnavailable,
		"spotify:track:blocked": services.ErrTrackUnavailable,
		"spotify:track:flaky":   services.ErrTransientDelivery,
		"spotify:album:x":       services.ErrTrackUnavailable,
	}
	for uri, want := range tests {
		if _, err := catalog.Resolve(ctx, uri); !errors.Is(err, want) {
			t.Fatalf("Resolve(%s): expected %v, got %v", uri, want, err)
		}
	}
}

func TestWebAPILoginFailureIsAuthError(t *testing.T) {
	catalog := newCatalog(t, &fakeAPI{tokenStatus: http.StatusUnauthorized}, nil)
	err := catalog.Login(context.Background(), session.Credentials{})
	if !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if _, err := catalog.Resolve(context.Background(), "spotify:track:t1"); !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected resolve before login to fail with ErrAuth, got %v", err)
	}
}

func TestWebAPILoginRequiresClientCredentials(t *testing.T) {
	catalog := newCatalog(t, &fakeAPI{}, func(c *config.Config) { c.Spotify.ClientSecret = "" })
	if err := catalog.Login(context.Background(), session.Credentials{}); !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestWebAPIExpandPlaylistAndRemove(t *testing.T) {
	api := &fakeAPI{}
	var tokenFile string
	catalog := newCatalog(t, api, func(c *config.Config) { tokenFile = c.Spotify.TokenFile })
	if err := session.SaveToken(tokenFile, testToken()); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	ctx := context.Background()
	if err := catalog.Login(ctx, session.Credentials{}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	// The configured user is "tester"; the token's account wins.
	if catalog.User() != "Owner" {
		t.Fatalf("expected display name from /me, got %q", catalog.User())
	}

	src, err := catalog.Expand(ctx, "https://open.spotify.com/playlist/p1")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if !src.IsPlaylist() || src.Name != "Road Trip" || len(src.Entries) != 2 {
		t.Fatalf("unexpected source %+v", src)
	}
	if src.Entries[1].URI != "spotify:track:t2" || src.Entries[1].Index != 2 {
		t.Fatalf("local items must keep playlist positions, got %+v", src.Entries[1])
	}
	if !catalog.OwnsPlaylist(src) {
		t.Fatal("expected logged-in user to own the playlist")
	}

	if err := catalog.RemoveFromPlaylist(ctx, src.URI, []int{2, 2}); err != nil {
		t.Fatalf("RemoveFromPlaylist: %v", err)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.removed) != 1 {
		t.Fatalf("expected one delete request, got %d", len(api.removed))
	}
	if api.removed[0]["snapshot_id"] != "snap1" {
		t.Fatalf("expected removal pinned to snapshot, got %v", api.removed[0])
	}
	tracks, ok := api.removed[0]["tracks"].([]any)
	if !ok {
		tracks, _ = api.removed[0]["items"].([]any)
	}
	if len(tracks) != 1 {
		t.Fatalf("expected a single de-duplicated track removal, got %v", api.removed[0])
	}
}

func TestWebAPIRemoveRequiresUserToken(t *testing.T) {
	catalog := newCatalog(t, &fakeAPI{}, nil)
	ctx := context.Background()
	if err := catalog.Login(ctx, session.Credentials{}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	src, err := catalog.Expand(ctx, "spotify:playlist:p1")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if catalog.OwnsPlaylist(src) {
		t.Fatal("client credentials cannot own a playlist")
	}
	if err := catalog.RemoveFromPlaylist(ctx, src.URI, []int{0}); !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestLastUserRoundTrip(t *testing.T) {
	catalog := newCatalog(t, &fakeAPI{}, nil)
	ctx := context.Background()
	if err := catalog.Login(ctx, session.Credentials{UseLast: true}); !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected --last without a stored login to fail, got %v", err)
	}
	if err := catalog.Login(ctx, session.Credentials{User: "alice"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := catalog.Login(ctx, session.Credentials{UseLast: true}); err != nil {
		t.Fatalf("Login --last: %v", err)
	}
	if catalog.User() != "alice" {
		t.Fatalf("User = %q", catalog.User())
	}
}

func TestWebAPIUserTokenIdentityWins(t *testing.T) {
	var tokenFile string
	catalog := newCatalog(t, &fakeAPI{}, func(c *config.Config) { tokenFile = c.Spotify.TokenFile })
	if err := session.SaveToken(tokenFile, testToken()); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	if err := catalog.Login(context.Background(), session.Credentials{User: "alice"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if catalog.User() != "Owner" {
		t.Fatalf("User = %q, want the token's account", catalog.User())
	}
	if last := session.LoadLastUser(filepath.Dir(tokenFile)); last != "Owner" {
		t.Fatalf("remembered user = %q", last)
	}
}

func TestWebAPIExpandArtistAlbums(t *testing.T) {
	api := &fakeAPI{}
	catalog := newCatalog(t, api, nil)
	ctx := context.Background()
	if err := catalog.Login(ctx, session.Credentials{}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	src, err := catalog.Expand(ctx, "spotify:artist:ar1")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if src.Name != "Band" {
		t.Fatalf("name = %q", src.Name)
	}
	want := []string{"a1", "a2", "a3", "b1", "c1"}
	if len(src.Entries) != len(want) {
		t.Fatalf("expected %d tracks, got %+v", len(want), src.Entries)
	}
	for i, id := range want {
		if src.Entries[i].URI != "spotify:track:"+id || src.Entries[i].Index != i {
			t.Fatalf("entry %d = %+v, want %s", i, src.Entries[i], id)
		}
	}
	api.mu.Lock()
	first := api.groups[0]
	api.mu.Unlock()
	for _, group := range []string{"album", "single", "compilation", "appears_on"} {
		if !strings.Contains(first, group) {
			t.Fatalf("include_groups %q is missing %s", first, group)
		}
	}
}

func TestWebAPIExpandArtistExcludesAppearsOn(t *testing.T) {
	api := &fakeAPI{}
	catalog := newCatalog(t, api, func(c *config.Config) { c.Spotify.ExcludeAppearsOn = true })
	ctx := context.Background()
	if err := catalog.Login(ctx, session.Credentials{}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	src, err := catalog.Expand(ctx, "https://open.spotify.com/artist/ar1")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(src.Entries) != 4 {
		t.Fatalf("expected the appears-on album to be skipped, got %+v", src.Entries)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if strings.Contains(api.groups[0], "appears_on") {
		t.Fatalf("include_groups = %q", api.groups[0])
	}
}

package session_test

import (
	"errors"
	"testing"

	"spotrip/internal/services"
	"spotrip/internal/session"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		in   string
		want session.URI
	}{
		{"spotify:track:4uLU6hMCjMI75M1A2tKUQC", session.URI{Kind: session.KindTrack, ID: "4uLU6hMCjMI75M1A2tKUQC"}},
		{"spotify:album:1", session.URI{Kind: session.KindAlbum, ID: "1"}},
		{"spotify:user:alice:playlist:37i9dQ", session.URI{Kind: session.KindPlaylist, ID: "37i9dQ"}},
		{"https://open.spotify.com/playlist/37i9dQ?si=abc", session.URI{Kind: session.KindPlaylist, ID: "37i9dQ"}},
		{"https://open.spotify.com/intl-de/artist/0OdUWJ0sBjDrqHygGUXeCF", session.URI{Kind: session.KindArtist, ID: "0OdUWJ0sBjDrqHygGUXeCF"}},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := session.ParseURI(tc.in)
			if err != nil {
				t.Fatalf("ParseURI: %v", err)
			}
			if got != tc.want {
				t.Fatalf("ParseURI = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestParseURIRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "spotify:show:1", "spotify:track:", "https://example.com/track/1", "track:1"} {
		if _, err := session.ParseURI(in); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("ParseURI(%q): expected validation error, got %v", in, err)
		}
	}
}

func TestURIString(t *testing.T) {
	u := session.URI{Kind: session.KindTrack, ID: "x"}
	if u.String() != "spotify:track:x" {
		t.Fatalf("String = %q", u.String())
	}
}

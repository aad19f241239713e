package session

import (
	"fmt"
	"net/url"
	"strings"

	"spotrip/internal/services"
)

// Kind is the type of object a URI names.
type Kind string

const (
	KindTrack    Kind = "track"
	KindAlbum    Kind = "album"
	KindPlaylist Kind = "playlist"
	KindArtist   Kind = "artist"
)

// URI is a parsed Spotify link.
type URI struct {
	Kind Kind
	ID   string
}

// String renders the canonical spotify:<kind>:<id> form.
func (u URI) String() string {
	return fmt.Sprintf("spotify:%s:%s", u.Kind, u.ID)
}

// ParseURI accepts spotify:<kind>:<id>, the legacy
// spotify:user:<owner>:playlist:<id> form and open.spotify.com links.
func ParseURI(raw string) (URI, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return URI{}, invalidURI(raw, "empty")
	}

	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		u, err := url.Parse(raw)
		if err != nil {
			return URI{}, invalidURI(raw, err.Error())
		}
		if !strings.HasSuffix(u.Host, "spotify.com") {
			return URI{}, invalidURI(raw, "not a spotify.com link")
		}
		parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
		// Localised links look like /intl-de/track/<id>.
		if len(parts) > 0 && strings.HasPrefix(parts[0], "intl-") {
			parts = parts[1:]
		}
		return fromParts(raw, parts)
	}

	parts := strings.Split(raw, ":")
	if len(parts) < 3 || parts[0] != "spotify" {
		return URI{}, invalidURI(raw, "expected spotify:<type>:<id>")
	}
	return fromParts(raw, parts[1:])
}

func fromParts(raw string, parts []string) (URI, error) {
	if len(parts) == 4 && parts[0] == "user" && parts[2] == "playlist" {
		parts = parts[2:]
	}
	if len(parts) != 2 {
		return URI{}, invalidURI(raw, "unexpected number of segments")
	}
	kind := Kind(parts[0])
	switch kind {
	case KindTrack, KindAlbum, KindPlaylist, KindArtist:
	default:
		return URI{}, invalidURI(raw, fmt.Sprintf("unsupported type %q", parts[0]))
	}
	id := strings.TrimSpace(parts[1])
	if id == "" {
		return URI{}, invalidURI(raw, "missing id")
	}
	return URI{Kind: kind, ID: id}, nil
}

func invalidURI(raw, reason string) error {
	return services.Wrap(services.ErrValidation, "session", "parse uri", fmt.Sprintf("%q: %s", raw, reason), nil)
}

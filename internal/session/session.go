package session

import (
	"context"

	"spotrip/internal/track"
)

// Format describes delivered PCM.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// PCM16Stereo44k is the only format the encoders accept.
var PCM16Stereo44k = Format{SampleRate: 44100, Channels: 2, BitsPerSample: 16}

// FrameSize returns the byte size of one frame in f.
func (f Format) FrameSize() int {
	return f.Channels * f.BitsPerSample / 8
}

// Handler receives audio for the track being delivered. Deliver runs on a
// goroutine owned by the session and must return promptly; returning fewer
// frames than offered asks the session to pause and offer the rest again.
type Handler interface {
	Deliver(pcm []byte, format Format) int
	EndOfTrack()
	DeliveryError(err error)
}

// Credentials identify the account used for the run.
type Credentials struct {
	User     string
	Password string
	// UseLast reuses the account stored by the previous successful login.
	UseLast bool
}

// Entry is one track within an expanded source.
type Entry struct {
	URI   string
	Index int
}

// Source is the expansion of a user-supplied URI.
type Source struct {
	Kind    Kind
	URI     string
	ID      string
	Name    string
	OwnerID string
	Entries []Entry
}

// IsPlaylist reports whether the source is a playlist.
func (s Source) IsPlaylist() bool {
	return s.Kind == KindPlaylist
}

// Catalog is the metadata half of a session.
type Catalog interface {
	Login(ctx context.Context, creds Credentials) error
	User() string
	Resolve(ctx context.Context, uri string) (track.Metadata, error)
	Expand(ctx context.Context, uri string) (Source, error)
	OwnsPlaylist(src Source) bool
	RemoveFromPlaylist(ctx context.Context, playlistURI string, indices []int) error
	Close() error
}

// Delivery is the audio half of a session. At most one delivery is active.
type Delivery interface {
	BeginDelivery(ctx context.Context, uri string, h Handler) error
	StopDelivery()
}

// Session is an authenticated connection able to resolve and deliver tracks.
type Session interface {
	Catalog
	Delivery
}

type composite struct {
	Catalog
	Delivery
}

// Compose joins a catalog and a delivery into one Session.
func Compose(c Catalog, d Delivery) Session {
	return composite{Catalog: c, Delivery: d}
}

func (s composite) Close() error {
	s.Delivery.StopDelivery()
	return s.Catalog.Close()
}

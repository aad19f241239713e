package ripping_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"spotrip/internal/services"
	"spotrip/internal/session"
	"spotrip/internal/testsupport"
	"spotrip/internal/track"
)

const chunkFrames = 1024

// plan scripts the delivery of one track.
type plan struct {
	frames int
	// infinite keeps delivering until the engine stops the delivery.
	infinite bool
	// transientFailures fails the first N attempts after failAfter frames.
	transientFailures int
	failAfter         int
}

type fakeSession struct {
	user     string
	loginErr error

	mu         sync.Mutex
	meta       map[string]track.Metadata
	resolveErr map[string]error
	sources    map[string]session.Source
	plans      map[string]plan
	attempts   map[string]int
	resolved   []string
	removed    map[string][]int
	active     *fakeDelivery
	concurrent int

	refusals atomic.Int64
}

type fakeDelivery struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		user:       "tester",
		meta:       map[string]track.Metadata{},
		resolveErr: map[string]error{},
		sources:    map[string]session.Source{},
		plans:      map[string]plan{},
		attempts:   map[string]int{},
		removed:    map[string][]int{},
	}
}

// addTrack registers a playable track and a single-track source for it.
func (s *fakeSession) addTrack(uri, artist, title string, p plan) {
	s.meta[uri] = track.Metadata{
		Artists:     []string{artist},
		AlbumArtist: artist,
		Album:       "Album",
		Title:       title,
		TrackNumber: 1,
		Duration:    time.Duration(p.frames) * time.Second / track.SampleRate,
	}
	s.plans[uri] = p
	s.sources[uri] = session.Source{
		Kind:    session.KindTrack,
		URI:     uri,
		Name:    title,
		Entries: []session.Entry{{URI: uri, Index: 0}},
	}
}

func (s *fakeSession) addSource(src session.Source) {
	s.sources[src.URI] = src
}

func (s *fakeSession) Login(context.Context, session.Credentials) error {
	return s.loginErr
}

func (s *fakeSession) User() string { return s.user }

func (s *fakeSession) Resolve(_ context.Context, uri string) (track.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved = append(s.resolved, uri)
	if err, ok := s.resolveErr[uri]; ok {
		return track.Metadata{}, err
	}
	meta, ok := s.meta[uri]
	if !ok {
		return track.Metadata{}, services.Wrap(services.ErrTrackUnavailable, "fake", "resolve", uri, nil)
	}
	return meta, nil
}

func (s *fakeSession) Expand(_ context.Context, uri string) (session.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[uri]
	if !ok {
		// Unknown tracks still expand so Resolve can reject them.
		if parsed, err := session.ParseURI(uri); err == nil && parsed.Kind == session.KindTrack {
			return session.Source{Kind: session.KindTrack, URI: uri, Entries: []session.Entry{{URI: uri}}}, nil
		}
		return session.Source{}, fmt.Errorf("unknown source %s", uri)
	}
	return src, nil
}

func (s *fakeSession) OwnsPlaylist(src session.Source) bool {
	return src.OwnerID == s.user
}

func (s *fakeSession) RemoveFromPlaylist(_ context.Context, playlistURI string, indices []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed[playlistURI] = append(s.removed[playlistURI], indices...)
	return nil
}

func (s *fakeSession) Close() error { return nil }

func (s *fakeSession) BeginDelivery(ctx context.Context, uri string, h session.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		s.concurrent++
		return errors.New("delivery already active")
	}
	s.attempts[uri]++
	attempt := s.attempts[uri]
	p := s.plans[uri]

	dctx, cancel := context.WithCancel(ctx)
	active := &fakeDelivery{cancel: cancel, done: make(chan struct{})}
	s.active = active
	go func() {
		defer close(active.done)
		s.deliver(dctx, p, attempt, h)
	}()
	return nil
}

func (s *fakeSession) StopDelivery() {
	s.mu.Lock()
	active := s.active
	s.active = nil
	s.mu.Unlock()
	if active == nil {
		return
	}
	active.cancel()
	<-active.done
}

func (s *fakeSession) deliver(ctx context.Context, p plan, attempt int, h session.Handler) {
	pcm := testsupport.PCM(chunkFrames)
	sent := 0
	for p.infinite || sent < p.frames {
		if attempt <= p.transientFailures && sent >= p.failAfter {
			h.DeliveryError(errors.New("connection reset by peer"))
			return
		}
		n := chunkFrames
		if !p.infinite {
			n = min(n, p.frames-sent)
		}
		data := pcm[:n*4]
		for len(data) > 0 {
			if ctx.Err() != nil {
				return
			}
			accepted := h.Deliver(data, session.PCM16Stereo44k)
			if accepted == 0 {
				s.refusals.Add(1)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Millisecond):
				}
				continue
			}
			data = data[accepted*4:]
			sent += accepted
		}
	}
	if ctx.Err() == nil {
		h.EndOfTrack()
	}
}

func (s *fakeSession) attemptsFor(uri string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[uri]
}

func (s *fakeSession) resolveOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.resolved)
}

func (s *fakeSession) removedFrom(uri string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.removed[uri])
}

func (s *fakeSession) overlappingDeliveries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.concurrent
}

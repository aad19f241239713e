package ripping

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"spotrip/internal/framebuf"
	"spotrip/internal/services"
	"spotrip/internal/session"
)

// deliveryHandler bridges the session's delivery goroutine into the frame
// buffer. It never blocks: a full buffer or a pending abort refuses the push
// and the session offers the same frames again later.
type deliveryHandler struct {
	buf     *framebuf.Buffer
	aborted *atomic.Bool

	mu  sync.Mutex
	err error
}

func newDeliveryHandler(buf *framebuf.Buffer, aborted *atomic.Bool) *deliveryHandler {
	return &deliveryHandler{buf: buf, aborted: aborted}
}

func (h *deliveryHandler) Deliver(pcm []byte, format session.Format) int {
	if h.aborted.Load() {
		return 0
	}
	if format != session.PCM16Stereo44k {
		h.fail(services.Wrap(services.ErrTrackUnavailable, "engine", "deliver",
			fmt.Sprintf("unsupported PCM format %d Hz, %d channels, %d bit", format.SampleRate, format.Channels, format.BitsPerSample), nil))
		return 0
	}
	return h.buf.Push(pcm)
}

func (h *deliveryHandler) EndOfTrack() {
	h.buf.MarkEnd()
}

func (h *deliveryHandler) DeliveryError(err error) {
	if err == nil {
		err = errors.New("delivery failed without detail")
	}
	if !errors.Is(err, services.ErrTransientDelivery) && !errors.Is(err, services.ErrTrackUnavailable) {
		err = services.Wrap(services.ErrTransientDelivery, "engine", "deliver", "", err)
	}
	h.fail(err)
}

// fail keeps the first error and ends the stream so the drain loop stops.
func (h *deliveryHandler) fail(err error) {
	h.mu.Lock()
	if h.err == nil {
		h.err = err
	}
	h.mu.Unlock()
	h.buf.MarkEnd()
}

// Err returns the first error the session reported.
func (h *deliveryHandler) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

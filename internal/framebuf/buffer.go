package framebuf

import (
	"io"
	"sync"
	"time"
)

// FrameSize is the byte size of one s16le stereo frame.
const FrameSize = 4

// DefaultLowWaterPercent is used when New receives an out-of-range value.
const DefaultLowWaterPercent = 50

// Buffer is a bounded, thread-safe FIFO of PCM bytes with hysteresis flow
// control. Len never exceeds Cap.
type Buffer struct {
	mu       sync.Mutex
	chunks   [][]byte
	head     int // read offset into chunks[0]
	size     int
	capacity int
	lowWater int
	paused   bool
	ended    bool

	pushed  int64
	refused int64

	// ready carries a single pending wake-up for Pull.
	ready chan struct{}
}

// New returns a buffer holding at most capacity bytes, rounded down to whole
// frames. The producer resumes once the fill drops below lowWaterPercent of
// the capacity.
func New(capacity, lowWaterPercent int) *Buffer {
	capacity -= capacity % FrameSize
	if capacity < FrameSize {
		capacity = FrameSize
	}
	if lowWaterPercent <= 0 || lowWaterPercent >= 100 {
		lowWaterPercent = DefaultLowWaterPercent
	}
	return &Buffer{
		capacity: capacity,
		lowWater: capacity * lowWaterPercent / 100,
		ready:    make(chan struct{}, 1),
	}
}

// Push copies as many whole frames of chunk as fit and returns the number of
// frames accepted. Zero means the producer should pause and offer the same
// data again later. Trailing partial frames are never accepted.
func (b *Buffer) Push(chunk []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ended || b.paused {
		if len(chunk) >= FrameSize {
			b.refused++
		}
		return 0
	}
	room := b.capacity - b.size
	n := len(chunk) - len(chunk)%FrameSize
	if n > room {
		n = room
	}
	if n <= 0 {
		return 0
	}

	data := make([]byte, n)
	copy(data, chunk[:n])
	b.chunks = append(b.chunks, data)
	b.size += n
	b.pushed += int64(n / FrameSize)
	if b.size >= b.capacity {
		b.paused = true
	}
	b.signal()
	return n / FrameSize
}

// Pull returns up to max bytes (whole frames; max <= 0 means everything
// buffered). When the buffer is empty it waits up to wait for data. It returns
// (nil, nil) on timeout and io.EOF once MarkEnd was called and every byte has
// been handed out.
func (b *Buffer) Pull(max int, wait time.Duration) ([]byte, error) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		b.mu.Lock()
		if b.size > 0 {
			out := b.take(max)
			b.mu.Unlock()
			return out, nil
		}
		if b.ended {
			b.mu.Unlock()
			return nil, io.EOF
		}
		b.mu.Unlock()

		if wait <= 0 {
			return nil, nil
		}
		if timer == nil {
			timer = time.NewTimer(wait)
		}
		select {
		case <-b.ready:
		case <-timer.C:
			return nil, nil
		}
	}
}

// take must be called with mu held and size > 0.
func (b *Buffer) take(max int) []byte {
	if max <= 0 || max > b.size {
		max = b.size
	}
	max -= max % FrameSize
	if max == 0 {
		max = FrameSize
	}

	out := make([]byte, 0, max)
	for len(out) < max {
		first := b.chunks[0][b.head:]
		need := max - len(out)
		if len(first) <= need {
			out = append(out, first...)
			b.chunks[0] = nil
			b.chunks = b.chunks[1:]
			b.head = 0
			continue
		}
		out = append(out, first[:need]...)
		b.head += need
	}
	b.size -= len(out)
	if b.paused && b.size < b.lowWater {
		b.paused = false
	}
	if b.size > 0 {
		b.signal()
	}
	return out
}

func (b *Buffer) signal() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// MarkEnd records that the producer will not push again. Pending data stays
// available to Pull.
func (b *Buffer) MarkEnd() {
	b.mu.Lock()
	b.ended = true
	b.mu.Unlock()
	b.signal()
}

// Ended reports whether MarkEnd was called.
func (b *Buffer) Ended() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ended
}

// IsFull reports whether a push would currently be refused.
func (b *Buffer) IsFull() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused || b.size >= b.capacity
}

// Paused reports whether the producer is held back by the high-water mark.
func (b *Buffer) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the capacity in bytes.
func (b *Buffer) Cap() int {
	return b.capacity
}

// LowWater returns the resume threshold in bytes.
func (b *Buffer) LowWater() int {
	return b.lowWater
}

// Stats reports the frames accepted so far and the number of refused pushes.
func (b *Buffer) Stats() (framesPushed, refusedPushes int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pushed, b.refused
}

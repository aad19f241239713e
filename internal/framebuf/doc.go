// Package framebuf provides the bounded PCM queue that sits between a
// session's delivery callback and the encoder drain loop.
//
// Push never blocks beyond a mutex critical section. When the buffer reaches
// its high-water mark (capacity) it pauses and refuses every push until the
// consumer drains it below the low-water mark, so the producer sees a clean
// pause/resume edge instead of thrashing on single frames. Pull waits with a
// timeout so the drain loop can check for cancellation between waits.
package framebuf

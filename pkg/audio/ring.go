package audio

import (
	"errors"
	"sync"
)

// ErrNotEnoughData is returned by [Ring.ReadLatest] while fewer samples than
// the requested window length have ever been written.
var ErrNotEnoughData = errors.New("audio: not enough data in ring buffer")

// Ring is a fixed-capacity circular buffer of normalized float32 PCM samples.
// It absorbs the rate mismatch between the capture goroutine and the window
// scheduler: writes never block and never fail, and once the buffer is full
// the oldest unread samples are silently overwritten. Overflow is an expected
// steady-state condition, not an error.
//
// Ring is designed for a single writer (the capture goroutine) and a single
// reader (the scheduler). The mutex only guards the short cursor updates, so
// neither side can stall the other for longer than a copy of one frame.
type Ring struct {
	mu      sync.Mutex
	buf     []float32
	head    int    // next write index
	length  int    // valid samples currently held, <= cap
	written uint64 // total samples ever written (monotonic cursor)
	dropped uint64 // total samples lost to overwrite
}

// NewRing creates a Ring holding up to capacity samples. Capacity must be
// positive; a typical sizing is sampleRate * bufferSeconds.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]float32, capacity)}
}

// Cap returns the fixed capacity in samples.
func (r *Ring) Cap() int { return len(r.buf) }

// Write appends samples, overwriting the oldest data on overflow.
// It never blocks and never fails.
func (r *Ring) Write(samples []float32) {
	if len(samples) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c := len(r.buf)
	src := samples
	// If the input alone exceeds capacity only its tail can survive.
	if len(src) > c {
		r.dropped += uint64(len(src) - c)
		src = src[len(src)-c:]
	}

	n := copy(r.buf[r.head:], src)
	if n < len(src) {
		copy(r.buf, src[n:])
	}
	r.head = (r.head + len(src)) % c

	overwritten := r.length + len(src) - c
	if overwritten > 0 {
		r.dropped += uint64(overwritten)
		r.length = c
	} else {
		r.length += len(src)
	}
	r.written += uint64(len(samples))
}

// ReadLatest copies the most recent n samples into a fresh slice and returns
// it along with the absolute end cursor (total samples ever written when the
// snapshot was taken). The returned slice is a snapshot: later writes never
// mutate it. Returns ErrNotEnoughData until at least n samples have been
// written since creation.
func (r *Ring) ReadLatest(n int) ([]float32, uint64, error) {
	if n <= 0 || n > len(r.buf) {
		return nil, 0, ErrNotEnoughData
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.length < n {
		return nil, 0, ErrNotEnoughData
	}

	out := make([]float32, n)
	start := (r.head - n + len(r.buf)) % len(r.buf)
	m := copy(out, r.buf[start:])
	if m < n {
		copy(out[m:], r.buf)
	}
	return out, r.written, nil
}

// Written returns the total number of samples ever written.
func (r *Ring) Written() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Dropped returns the total number of samples lost to overflow overwrite.
func (r *Ring) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

package audio

import "sync"

// Ring is a fixed-capacity byte ring holding the most recent seconds of
// decoded PCM. It is written from the stream-decode goroutine and read from
// the control goroutine; the mutex is held only for the memory copy, and
// Write never blocks on readers.
type Ring struct {
	mu  sync.Mutex
	buf []byte
	w   int // write position
	n   int // bytes stored
}

// NewRing creates a ring retaining the last maxSeconds of PCM at the
// package sample rate and channel count.
func NewRing(maxSeconds float64) *Ring {
	size := int(maxSeconds * BytesPerSecond)
	if size < 1 {
		size = 1
	}
	return &Ring{buf: make([]byte, size)}
}

// Write appends PCM bytes, evicting the oldest bytes once capacity is
// exceeded. Chunks larger than the whole ring keep only their tail.
func (r *Ring) Write(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(p) >= len(r.buf) {
		copy(r.buf, p[len(p)-len(r.buf):])
		r.w = 0
		r.n = len(r.buf)
		return
	}

	// Drop oldest bytes to make room.
	if over := r.n + len(p) - len(r.buf); over > 0 {
		r.w = (r.w + over) % len(r.buf)
		r.n -= over
	}

	end := (r.w + r.n) % len(r.buf)
	right := len(r.buf) - end
	if right > len(p) {
		right = len(p)
	}
	copy(r.buf[end:end+right], p[:right])
	if right < len(p) {
		copy(r.buf[0:len(p)-right], p[right:])
	}
	r.n += len(p)
}

// Snapshot returns a copy of the retained bytes, oldest first, without
// draining the ring.
func (r *Ring) Snapshot() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]byte, r.n)
	if r.n == 0 {
		return out
	}
	right := len(r.buf) - r.w
	if right > r.n {
		right = r.n
	}
	copy(out, r.buf[r.w:r.w+right])
	if right < r.n {
		copy(out[right:], r.buf[:r.n-right])
	}
	return out
}

// Clear empties the ring.
func (r *Ring) Clear() {
	r.mu.Lock()
	r.w = 0
	r.n = 0
	r.mu.Unlock()
}

// Duration returns the retained audio length in seconds.
func (r *Ring) Duration() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return float64(r.n) / float64(BytesPerSecond)
}

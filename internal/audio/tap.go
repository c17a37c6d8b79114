package audio

import "sync"

// Tap is an analyser: a source wrapper that copies everything the wrapped
// source renders into a ring buffer. Snapshot may be called from any
// goroutine.
type Tap struct {
	src  Source
	mu   sync.Mutex
	buf  []float32
	pos  int
	size int
}

// NewTap wraps src with a ring buffer of size samples.
func NewTap(src Source, size int) *Tap {
	if size <= 0 {
		size = 1024
	}
	return &Tap{
		src:  src,
		buf:  make([]float32, size),
		size: size,
	}
}

// Size returns the fixed snapshot length.
func (t *Tap) Size() int { return t.size }

// Process passes audio through while capturing it.
func (t *Tap) Process(out []float32, t0 float64) bool {
	alive := t.src.Process(out, t0)
	t.mu.Lock()
	for _, v := range out {
		t.buf[t.pos] = v
		t.pos = (t.pos + 1) % t.size
	}
	t.mu.Unlock()
	return alive
}

// Snapshot returns the last Size samples in chronological order.
func (t *Tap) Snapshot() []float32 {
	out := make([]float32, t.size)
	t.mu.Lock()
	n := copy(out, t.buf[t.pos:])
	copy(out[n:], t.buf[:t.pos])
	t.mu.Unlock()
	return out
}

// Reset fills the ring buffer with silence.
func (t *Tap) Reset() {
	t.mu.Lock()
	clear(t.buf)
	t.pos = 0
	t.mu.Unlock()
}

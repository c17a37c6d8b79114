package audio

import (
	"github.com/viterin/vek/vek32"
)

// Bus mixes every connected source into the master output block.
type Bus struct {
	sources []Source
	scratch []float32
	gain    float32
}

// NewBus creates a master bus with unity gain.
func NewBus() *Bus {
	return &Bus{
		scratch: make([]float32, BlockSize),
		gain:    1,
	}
}

// Connect adds a source to the mix.
func (b *Bus) Connect(src Source) {
	b.sources = append(b.sources, src)
}

// Disconnect removes a source without waiting for it to finish.
func (b *Bus) Disconnect(src Source) {
	for i, s := range b.sources {
		if s == src {
			b.sources = append(b.sources[:i], b.sources[i+1:]...)
			return
		}
	}
}

// Len returns the number of connected sources.
func (b *Bus) Len() int { return len(b.sources) }

// SetGain sets the master gain.
func (b *Bus) SetGain(g float32) { b.gain = g }

// Process renders all sources into out, dropping the ones that finished.
func (b *Bus) Process(out []float32, t0 float64) {
	if cap(b.scratch) < len(out) {
		b.scratch = make([]float32, len(out))
	}
	tmp := b.scratch[:len(out)]
	vek32.Zeros_Into(out, len(out))

	live := b.sources[:0]
	for _, src := range b.sources {
		alive := src.Process(tmp, t0)
		vek32.Add_Inplace(out, tmp)
		if alive {
			live = append(live, src)
		}
	}
	clear(b.sources[len(live):])
	b.sources = live

	if b.gain != 1 {
		vek32.MulNumber_Inplace(out, b.gain)
	}
	for i, v := range out {
		if v > 1 {
			out[i] = 1
		} else if v < -1 {
			out[i] = -1
		}
	}
}

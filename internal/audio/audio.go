// Package audio holds the sound-producing side of tonebox: note and duration
// parsing, synth voices, the master bus, the analyser tap, the voice pool and
// the output drivers that pull rendered blocks.
package audio

import "time"

const (
	SampleRate    = 48000
	Channels      = 2
	BlockSize     = 128 // frames rendered between scheduling passes
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// RenderFunc fills out with the next len(out) mono samples.
type RenderFunc func(out []float32)

// Source produces mono audio into a block. t0 is the clock time of out[0].
// Process overwrites out and returns false once the source is finished and
// may be dropped from the bus.
type Source interface {
	Process(out []float32, t0 float64) bool
}

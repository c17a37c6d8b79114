package audio

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/pkg/errors"
)

const speakerBuffer = 40 * time.Millisecond

// SpeakerOutput plays rendered audio on the default device through oto.
// oto allows a single context per process.
type SpeakerOutput struct {
	ctx    *oto.Context
	player *oto.Player
}

// NewSpeakerOutput creates an unstarted speaker output.
func NewSpeakerOutput() *SpeakerOutput {
	return &SpeakerOutput{}
}

// Start opens the device and begins pulling from render.
func (s *SpeakerOutput) Start(render RenderFunc) error {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: Channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   speakerBuffer,
	})
	if err != nil {
		return errors.Wrap(err, "cannot create oto context")
	}
	<-ready
	s.ctx = ctx
	s.player = ctx.NewPlayer(&renderReader{render: render})
	s.player.Play()
	return nil
}

// Close stops playback. The oto context itself lives until process exit.
func (s *SpeakerOutput) Close() error {
	if s.player == nil {
		return nil
	}
	err := s.player.Close()
	s.player = nil
	if err != nil {
		return errors.Wrap(err, "cannot close oto player")
	}
	return nil
}

// renderReader adapts a RenderFunc to the io.Reader oto pulls from,
// duplicating mono into interleaved float32 stereo.
type renderReader struct {
	render RenderFunc
	mono   []float32
}

func (r *renderReader) Read(p []byte) (int, error) {
	const frameBytes = 4 * Channels
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}
	if cap(r.mono) < frames {
		r.mono = make([]float32, frames)
	}
	mono := r.mono[:frames]
	r.render(mono)
	for i, v := range mono {
		bits := math.Float32bits(v)
		for c := 0; c < Channels; c++ {
			binary.LittleEndian.PutUint32(p[i*frameBytes+c*4:], bits)
		}
	}
	return frames * frameBytes, nil
}

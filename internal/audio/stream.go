package audio

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// StreamOutput renders at real-time rate without a device: every 20ms it
// pulls one frame and emits it as interleaved stereo int16 PCM for network
// listeners.
type StreamOutput struct {
	frameCh chan []int16

	mu      sync.RWMutex
	cancel  context.CancelFunc
	done    chan struct{}
	elapsed time.Duration
}

// NewStreamOutput creates an unstarted stream output.
func NewStreamOutput() *StreamOutput {
	return &StreamOutput{
		frameCh: make(chan []int16, 100),
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each). It is
// closed when the output is closed.
func (p *StreamOutput) Frames() <-chan []int16 {
	return p.frameCh
}

// Elapsed returns how much audio has been emitted.
func (p *StreamOutput) Elapsed() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.elapsed
}

// Start begins the frame pump.
func (p *StreamOutput) Start(render RenderFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return errors.New("stream output already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, render)
	return nil
}

// Close stops the pump and waits for it to exit.
func (p *StreamOutput) Close() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (p *StreamOutput) run(ctx context.Context, render RenderFunc) {
	defer close(p.done)
	defer close(p.frameCh)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	mono := make([]float32, FrameSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		render(mono)
		frame := Interleave(mono, make([]int16, 0, FrameSamples))

		select {
		case p.frameCh <- frame:
		case <-ctx.Done():
			return
		}

		p.mu.Lock()
		p.elapsed += FrameDuration
		p.mu.Unlock()
	}
}

// Package engine is the audio context of one application session. It owns
// the clock, transport, voices, scheduler, analysis feed and the published
// state, and runs play requests as sessions with guaranteed teardown.
//
// All audio-side state is guarded by one mutex. Render holds it while it
// advances the clock, so scheduled callbacks run serialized with the play
// operations and see the exact clock time they were scheduled for.
package engine

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/satindergrewal/tonebox/internal/analysis"
	"github.com/satindergrewal/tonebox/internal/audio"
	"github.com/satindergrewal/tonebox/internal/config"
	"github.com/satindergrewal/tonebox/internal/sched"
	"github.com/satindergrewal/tonebox/internal/state"
	"github.com/satindergrewal/tonebox/internal/transport"
)

var (
	ErrOutputUnavailable = errors.New("audio output unavailable")
	ErrClosed            = errors.New("engine closed")
)

// Options configure an Engine.
type Options struct {
	Config config.Config
	// NewOutput opens the audio output on first play. Defaults to the
	// output named by Config.Output.
	NewOutput func() (audio.Output, error)
	Logger    *logrus.Entry
}

// Engine runs playback sessions. Safe for concurrent use.
type Engine struct {
	cfg       config.Config
	log       *logrus.Entry
	headless  bool
	newOutput func() (audio.Output, error)
	store     *state.Store
	initMu    sync.Mutex

	mu      sync.Mutex
	clock   *transport.Clock
	tr      *transport.Transport
	bus     *audio.Bus
	pool    *audio.Pool
	sched   *sched.Scheduler
	out     audio.Output
	feed    *analysis.Feed
	session *session
	block   []float32
	closed  bool

	obs observer
}

// New creates an idle engine. No output is opened until the first play
// request. With Config.Output set to none the engine is headless: every
// operation returns immediately and the state stays inert.
func New(opts Options) *Engine {
	cfg := opts.Config
	log := opts.Logger
	if log == nil {
		log = logrus.WithField("component", "engine")
	}
	clock := transport.NewClock(audio.SampleRate)
	tr := transport.New(clock, cfg.BPM)
	bus := audio.NewBus()
	e := &Engine{
		cfg:       cfg,
		log:       log,
		headless:  cfg.Output == config.OutputNone,
		newOutput: opts.NewOutput,
		store:     state.NewStore(),
		clock:     clock,
		tr:        tr,
		bus:       bus,
		pool:      audio.NewPool(bus, cfg.WaveformSize),
		sched:     sched.New(tr, log.WithField("component", "sched")),
		block:     make([]float32, audio.BlockSize),
	}
	if e.newOutput == nil {
		e.newOutput = func() (audio.Output, error) { return OutputFor(cfg.Output) }
	}
	if !e.headless {
		e.store.SetTransport(tr.BPM(), tr.PositionString())
	}
	return e
}

// OutputFor builds the output named by a config output mode.
func OutputFor(mode string) (audio.Output, error) {
	switch mode {
	case config.OutputSpeaker:
		return audio.NewSpeakerOutput(), nil
	case config.OutputStream:
		return audio.NewStreamOutput(), nil
	case config.OutputOffline:
		return audio.Offline{}, nil
	}
	return nil, errors.Errorf("no output for mode %q", mode)
}

// Headless reports whether the engine ignores every operation.
func (e *Engine) Headless() bool { return e.headless }

// Store returns the published state.
func (e *Engine) Store() *state.Store { return e.store }

// State returns the current published snapshot.
func (e *Engine) State() state.Snapshot { return e.store.Snapshot() }

// Now returns the audio clock time in seconds. It never blocks on the
// engine lock.
func (e *Engine) Now() float64 { return e.clock.Now() }

// Render fills out with the next len(out) mono samples and advances the
// clock by the same amount. Outputs call it from their own goroutine;
// offline users call it directly to move time forward.
func (e *Engine) Render(out []float32) {
	if e.headless {
		clear(out)
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for off := 0; off < len(out); off += audio.BlockSize {
		n := min(audio.BlockSize, len(out)-off)
		blk := e.block[:n]
		t0 := e.clock.Now()
		e.tr.Advance(n)
		e.clock.Advance(n)
		e.bus.Process(blk, t0)
		copy(out[off:off+n], blk)
	}
}

// RenderSeconds renders and discards seconds of audio. Offline tools use it
// to let scheduled work play out.
func (e *Engine) RenderSeconds(seconds float64) {
	n := int(seconds*audio.SampleRate + 0.5)
	buf := make([]float32, audio.FrameSize)
	for n > 0 {
		k := min(n, len(buf))
		e.Render(buf[:k])
		n -= k
	}
}

// Close tears down any session, stops the observer, disposes every voice
// and closes the output. The engine rejects play requests afterwards.
func (e *Engine) Close() error {
	if e.headless {
		return nil
	}
	e.StopTimeObserver()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	if e.session != nil {
		e.teardownLocked(e.session, "closed", true)
	}
	e.pool.Close()
	e.closed = true
	out := e.out
	e.out = nil
	e.mu.Unlock()

	// The output's render goroutine takes e.mu, so close it unlocked.
	if out != nil {
		return errors.Wrap(out.Close(), "close output")
	}
	return nil
}

// Open starts the audio output ahead of the first play request. Stream
// outputs use it so listeners hear the frame pump from the start.
func (e *Engine) Open() error {
	if e.headless {
		return nil
	}
	if err := e.ensureContext(); err != nil {
		return err
	}
	e.store.SetPhase(state.Idle)
	return nil
}

// ensureContext opens the output on first use. It must be called without
// e.mu held: starting an output may pull audio through Render at once.
func (e *Engine) ensureContext() error {
	e.initMu.Lock()
	defer e.initMu.Unlock()

	e.mu.Lock()
	closed, ready := e.closed, e.out != nil
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if ready {
		return nil
	}

	e.store.SetPhase(state.Initializing)
	out, err := e.newOutput()
	if err == nil {
		err = out.Start(e.Render)
	}
	if err != nil {
		e.store.SetPhase(state.Idle)
		e.log.WithError(err).Error("Audio output unavailable")
		return errors.Wrapf(ErrOutputUnavailable, "%v", err)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		out.Close()
		return ErrClosed
	}
	e.out = out
	e.mu.Unlock()
	e.log.WithField("output", e.cfg.Output).Info("Audio output started")
	return nil
}

// ensureFeedLocked creates the primary voice and its analysis feed.
func (e *Engine) ensureFeedLocked() *audio.Synth {
	v := e.pool.EnsurePrimary()
	if e.feed == nil {
		interval := time.Second / 60
		if e.cfg.FrameRate > 0 {
			interval = time.Second / time.Duration(e.cfg.FrameRate)
		}
		e.feed = analysis.NewFeed(e.pool.Tap(), e.cfg.WaveformSize, interval, e.store.SetWaveform)
	}
	return v
}

// setPlayingLocked publishes isPlaying and keeps the feed running exactly
// while it is true.
func (e *Engine) setPlayingLocked(playing bool) {
	if !e.store.SetPlaying(playing) || e.feed == nil {
		return
	}
	if playing {
		e.feed.Start()
	} else {
		e.feed.Stop()
	}
}

// FeedRunning reports whether the waveform feed is sampling.
func (e *Engine) FeedRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.feed != nil && e.feed.Running()
}

// Active returns the number of scheduled parts and loops.
func (e *Engine) Active() (parts, loops int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sched.Active()
}

// programmerError panics in strict mode and is logged otherwise.
func (e *Engine) programmerError(err error) {
	if e.cfg.Strict {
		panic(err)
	}
	e.log.WithError(err).Error("Programmer error ignored")
}

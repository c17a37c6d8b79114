package audio

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// ErrDisposed is returned when a trigger reaches a voice after Dispose.
// Callers treat it as a programmer error.
var ErrDisposed = errors.New("voice disposed")

// Voice is a monophonic sound-producing unit addressed by note triggers.
// Times are seconds on the audio clock. Voices are not safe for concurrent
// use; the engine serializes access.
type Voice interface {
	Source
	TriggerAttack(freq, at float64) error
	TriggerRelease(at float64) error
	TriggerAttackRelease(freq, dur, at float64) error
	CancelAfter(t float64)
	Dispose()
	Disposed() bool
}

// Timbre selects the oscillator structure of a Synth.
type Timbre int

const (
	TimbreBasic Timbre = iota // triangle oscillator
	TimbreFM                  // sine carrier, frequency modulated
	TimbreAM                  // sine carrier, amplitude modulated
)

func (t Timbre) String() string {
	switch t {
	case TimbreFM:
		return "fm"
	case TimbreAM:
		return "am"
	default:
		return "basic"
	}
}

// Envelope is an ADSR shape. Attack, Decay and Release are seconds; Sustain
// is a level in [0, 1].
type Envelope struct {
	Attack, Decay, Sustain, Release float64
}

const disposeFade = 0.005 // seconds

type eventKind int

const (
	attackEvent eventKind = iota
	releaseEvent
)

type voiceEvent struct {
	at   float64
	kind eventKind
	freq float64
}

// Synth is the one voice implementation; the timbre decides how each sample
// is produced.
type Synth struct {
	Name   string
	timbre Timbre

	env         Envelope
	modEnv      Envelope
	harmonicity float64
	modIndex    float64
	gain        float32

	events   []voiceEvent // sorted by at
	freq     float64
	phase    float64
	modPhase float64
	amp      envState
	mod      envState

	disposed  bool
	fade      int
	fadeTotal int
}

// NewSynth creates the basic triangle voice used as the primary voice.
func NewSynth(name string) *Synth {
	return &Synth{
		Name:   name,
		timbre: TimbreBasic,
		env:    Envelope{Attack: 0.005, Decay: 0.1, Sustain: 0.3, Release: 1},
		gain:   0.5,
	}
}

// NewFMSynth creates a frequency-modulated voice.
func NewFMSynth(name string) *Synth {
	return &Synth{
		Name:        name,
		timbre:      TimbreFM,
		env:         Envelope{Attack: 0.01, Decay: 0.01, Sustain: 1, Release: 0.5},
		modEnv:      Envelope{Attack: 0.5, Decay: 0, Sustain: 1, Release: 0.5},
		harmonicity: 3,
		modIndex:    10,
		gain:        0.4,
	}
}

// NewAMSynth creates an amplitude-modulated voice.
func NewAMSynth(name string) *Synth {
	return &Synth{
		Name:        name,
		timbre:      TimbreAM,
		env:         Envelope{Attack: 0.01, Decay: 0.01, Sustain: 1, Release: 0.5},
		modEnv:      Envelope{Attack: 0.5, Decay: 0, Sustain: 1, Release: 0.5},
		harmonicity: 3,
		gain:        0.4,
	}
}

// Timbre returns the voice's oscillator structure.
func (s *Synth) Timbre() Timbre { return s.timbre }

// TriggerAttack starts a note at freq Hz at clock time at.
func (s *Synth) TriggerAttack(freq, at float64) error {
	if s.disposed {
		return errors.Wrapf(ErrDisposed, "attack on %s", s.Name)
	}
	s.insert(voiceEvent{at: at, kind: attackEvent, freq: freq})
	return nil
}

// TriggerRelease releases the sounding note at clock time at.
func (s *Synth) TriggerRelease(at float64) error {
	if s.disposed {
		return errors.Wrapf(ErrDisposed, "release on %s", s.Name)
	}
	s.insert(voiceEvent{at: at, kind: releaseEvent})
	return nil
}

// TriggerAttackRelease plays freq for dur seconds starting at at.
func (s *Synth) TriggerAttackRelease(freq, dur, at float64) error {
	if err := s.TriggerAttack(freq, at); err != nil {
		return err
	}
	return s.TriggerRelease(at + dur)
}

// CancelAfter drops every pending trigger scheduled later than t.
func (s *Synth) CancelAfter(t float64) {
	i := sort.Search(len(s.events), func(i int) bool { return s.events[i].at > t })
	s.events = s.events[:i]
}

// Pending returns the number of triggers not yet applied.
func (s *Synth) Pending() int { return len(s.events) }

// Sounding reports whether the envelope is open.
func (s *Synth) Sounding() bool { return s.amp.stage != stageIdle }

// Dispose stops the voice. A sounding voice fades out over a few
// milliseconds before Process reports it finished.
func (s *Synth) Dispose() {
	if s.disposed {
		return
	}
	s.disposed = true
	s.events = nil
	if s.Sounding() {
		s.fadeTotal = int(disposeFade * SampleRate)
		s.fade = s.fadeTotal
	}
}

// Disposed reports whether Dispose was called.
func (s *Synth) Disposed() bool { return s.disposed }

// Process implements Source.
func (s *Synth) Process(out []float32, t0 float64) bool {
	if s.disposed && s.fade <= 0 {
		clear(out)
		return false
	}
	dt := 1.0 / SampleRate
	for i := range out {
		t := t0 + float64(i)*dt
		for len(s.events) > 0 && s.events[0].at <= t {
			s.apply(s.events[0])
			s.events = s.events[1:]
		}
		v := s.next() * s.gain
		if s.disposed {
			v *= fadeGain(s.fade, s.fadeTotal)
			s.fade--
			if s.fade <= 0 {
				out[i] = v
				clear(out[i+1:])
				return false
			}
		}
		out[i] = v
	}
	return true
}

func (s *Synth) insert(ev voiceEvent) {
	i := sort.Search(len(s.events), func(i int) bool { return s.events[i].at > ev.at })
	s.events = append(s.events, voiceEvent{})
	copy(s.events[i+1:], s.events[i:])
	s.events[i] = ev
}

func (s *Synth) apply(ev voiceEvent) {
	switch ev.kind {
	case attackEvent:
		s.freq = ev.freq
		s.amp.attack()
		s.mod.attack()
	case releaseEvent:
		s.amp.release(s.env)
		s.mod.release(s.modEnv)
	}
}

// next advances oscillators and envelopes by one sample.
func (s *Synth) next() float32 {
	level := s.amp.next(s.env)
	if s.amp.stage == stageIdle && level == 0 {
		return 0
	}
	var v float64
	switch s.timbre {
	case TimbreFM:
		modLevel := s.mod.next(s.modEnv)
		modFreq := s.freq * s.harmonicity
		mod := math.Sin(2*math.Pi*s.modPhase) * s.modIndex * modFreq * modLevel
		s.modPhase = wrap(s.modPhase + modFreq/SampleRate)
		v = math.Sin(2 * math.Pi * s.phase)
		s.phase = wrap(s.phase + (s.freq+mod)/SampleRate)
	case TimbreAM:
		modLevel := s.mod.next(s.modEnv)
		am := 0.5 + 0.5*math.Sin(2*math.Pi*s.modPhase)
		s.modPhase = wrap(s.modPhase + s.freq*s.harmonicity/SampleRate)
		v = math.Sin(2*math.Pi*s.phase) * (1 - modLevel + modLevel*am)
		s.phase = wrap(s.phase + s.freq/SampleRate)
	default:
		v = 1 - 4*math.Abs(s.phase-0.5)
		s.phase = wrap(s.phase + s.freq/SampleRate)
	}
	return float32(v * level)
}

func wrap(p float64) float64 {
	return p - math.Floor(p)
}

type envStage int

const (
	stageIdle envStage = iota
	stageAttack
	stageDecay
	stageSustain
	stageRelease
)

// envState runs a linear ADSR one sample at a time.
type envState struct {
	stage   envStage
	level   float64
	relStep float64
}

func (e *envState) attack() {
	e.stage = stageAttack
}

func (e *envState) release(p Envelope) {
	if e.stage == stageIdle {
		return
	}
	e.stage = stageRelease
	e.relStep = e.level / math.Max(p.Release*SampleRate, 1)
}

func (e *envState) next(p Envelope) float64 {
	switch e.stage {
	case stageAttack:
		e.level += 1 / math.Max(p.Attack*SampleRate, 1)
		if e.level >= 1 {
			e.level = 1
			e.stage = stageDecay
		}
	case stageDecay:
		e.level -= (1 - p.Sustain) / math.Max(p.Decay*SampleRate, 1)
		if e.level <= p.Sustain {
			e.level = p.Sustain
			e.stage = stageSustain
		}
	case stageRelease:
		e.level -= e.relStep
		if e.level <= 0 {
			e.level = 0
			e.stage = stageIdle
		}
	}
	return e.level
}

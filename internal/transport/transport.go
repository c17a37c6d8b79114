package transport

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/satindergrewal/tonebox/internal/audio"
)

// PPQ is the transport resolution in ticks per quarter note.
const PPQ = 192

// ErrInvalidTempo is returned for non-positive tempos.
var ErrInvalidTempo = errors.New("tempo must be positive")

// Ticks is a musical position or length.
type Ticks float64

// Event is a callback registered on the transport timeline. A repeating
// event re-fires every interval until disposed.
type Event struct {
	id       uint64
	tick     Ticks
	interval Ticks
	fn       func(t float64)
	tr       *Transport
	done     bool
}

// Dispose removes the event so it can never fire again. Safe to call more
// than once or on nil.
func (e *Event) Dispose() {
	if e == nil || e.done {
		return
	}
	e.done = true
	e.tr.remove(e)
}

// Done reports whether the event was disposed or, for one-shots, has fired.
func (e *Event) Done() bool { return e.done }

// Next returns the tick of the next firing.
func (e *Event) Next() Ticks { return e.tick }

type tempoRamp struct {
	from, to   float64
	start, dur float64 // clock seconds
}

// Transport is the shared musical clock. It converts musical time to clock
// time and fires scheduled events while running. Not safe for concurrent
// use; the owner serializes access.
type Transport struct {
	clock   *Clock
	running bool
	ticks   Ticks
	bpm     float64
	ramp    *tempoRamp
	events  []*Event // sorted by tick, then id
	seq     uint64
}

// New creates a stopped transport at position zero.
func New(clock *Clock, bpm float64) *Transport {
	if bpm <= 0 {
		bpm = 120
	}
	return &Transport{clock: clock, bpm: bpm}
}

// Clock returns the underlying audio clock.
func (t *Transport) Clock() *Clock { return t.clock }

// Now returns the current clock time in seconds.
func (t *Transport) Now() float64 { return t.clock.Now() }

// Start runs the transport. Starting a running transport is a no-op.
func (t *Transport) Start() {
	t.running = true
}

// Stop halts the transport and keeps its position. Stopping a stopped
// transport is a no-op.
func (t *Transport) Stop() {
	t.running = false
}

// Running reports whether the transport is started.
func (t *Transport) Running() bool { return t.running }

// Position returns the current position in ticks.
func (t *Transport) Position() Ticks { return t.ticks }

// PositionString formats the position as bars:beats:sixteenths in 4/4.
func (t *Transport) PositionString() string {
	beats := float64(t.ticks) / PPQ
	bars := math.Floor(beats / 4)
	beat := math.Floor(beats - bars*4)
	six := math.Round((beats-math.Floor(beats))*4*1000) / 1000
	return fmt.Sprintf("%d:%d:%s", int(bars), int(beat), strconv.FormatFloat(six, 'f', -1, 64))
}

// BPM returns the current tempo.
func (t *Transport) BPM() float64 { return t.bpm }

// SetBPM jumps to bpm, cancelling any ramp in progress.
func (t *Transport) SetBPM(bpm float64) error {
	if bpm <= 0 {
		return errors.Wrapf(ErrInvalidTempo, "%v", bpm)
	}
	t.bpm = bpm
	t.ramp = nil
	return nil
}

// RampTempo moves the tempo to target over seconds of clock time along an
// exponential curve, re-evaluated every rendered block.
func (t *Transport) RampTempo(target, seconds float64) error {
	if target <= 0 {
		return errors.Wrapf(ErrInvalidTempo, "ramp target %v", target)
	}
	if seconds <= 0 {
		return t.SetBPM(target)
	}
	t.ramp = &tempoRamp{from: t.bpm, to: target, start: t.clock.Now(), dur: seconds}
	return nil
}

// HoldTempo ends any ramp in progress, keeping the tempo it has reached.
func (t *Transport) HoldTempo() {
	t.updateTempo(t.clock.Now())
	t.ramp = nil
}

// Ramping reports whether a tempo ramp is in progress.
func (t *Transport) Ramping() bool { return t.ramp != nil }

// SecondsToTicks converts seconds to ticks at the current tempo.
func (t *Transport) SecondsToTicks(s float64) Ticks {
	return Ticks(s * t.bpm / 60 * PPQ)
}

// TicksToSeconds converts ticks to seconds at the current tempo.
func (t *Transport) TicksToSeconds(tk Ticks) float64 {
	return float64(tk) / PPQ * 60 / t.bpm
}

// Ticks converts a notation value such as "4n" to ticks.
func (t *Transport) Ticks(notation string) (Ticks, error) {
	beats, err := audio.ParseDuration(notation)
	if err != nil {
		return 0, err
	}
	return Ticks(beats * PPQ), nil
}

// Seconds converts a notation value to seconds at the current tempo.
func (t *Transport) Seconds(notation string) (float64, error) {
	tk, err := t.Ticks(notation)
	if err != nil {
		return 0, err
	}
	return t.TicksToSeconds(tk), nil
}

// Schedule registers a one-shot callback at the given position. A position
// already passed fires on the next rendered block.
func (t *Transport) Schedule(at Ticks, fn func(t float64)) *Event {
	ev := t.newEvent(at, 0, fn)
	t.insert(ev)
	return ev
}

// ScheduleRepeat registers a callback fired every interval starting at
// start. Firings that would already be in the past are skipped.
func (t *Transport) ScheduleRepeat(interval, start Ticks, fn func(t float64)) *Event {
	if interval <= 0 {
		interval = PPQ
	}
	for start < t.ticks {
		start += interval
	}
	ev := t.newEvent(start, interval, fn)
	t.insert(ev)
	return ev
}

// Scheduled returns the number of live events.
func (t *Transport) Scheduled() int { return len(t.events) }

// Advance moves the transport across the next frames of clock time, firing
// events whose tick falls inside the block with their exact clock time.
// Call it before advancing the clock itself.
func (t *Transport) Advance(frames int) {
	t0 := t.clock.Now()
	dt := float64(frames) / float64(t.clock.SampleRate())
	t.updateTempo(t0)
	if !t.running {
		return
	}

	tps := t.bpm / 60 * PPQ
	end := t.ticks + Ticks(tps*dt)
	for len(t.events) > 0 && t.events[0].tick < end {
		ev := t.events[0]
		at := t0 + math.Max(float64(ev.tick-t.ticks), 0)/tps
		t.events = t.events[1:]
		if ev.interval > 0 {
			ev.tick += ev.interval
			t.insert(ev)
		} else {
			ev.done = true
		}
		ev.fn(at)
		if !t.running {
			break
		}
	}
	t.ticks = end
}

func (t *Transport) updateTempo(now float64) {
	r := t.ramp
	if r == nil {
		return
	}
	progress := (now - r.start) / r.dur
	if progress >= 1 {
		t.bpm = r.to
		t.ramp = nil
		return
	}
	if progress < 0 {
		progress = 0
	}
	t.bpm = r.from * math.Pow(r.to/r.from, progress)
}

func (t *Transport) newEvent(at, interval Ticks, fn func(float64)) *Event {
	t.seq++
	return &Event{id: t.seq, tick: at, interval: interval, fn: fn, tr: t}
}

func (t *Transport) insert(ev *Event) {
	i := sort.Search(len(t.events), func(i int) bool {
		e := t.events[i]
		if e.tick == ev.tick {
			return e.id > ev.id
		}
		return e.tick > ev.tick
	})
	t.events = append(t.events, nil)
	copy(t.events[i+1:], t.events[i:])
	t.events[i] = ev
}

func (t *Transport) remove(ev *Event) {
	for i, e := range t.events {
		if e == ev {
			t.events = append(t.events[:i], t.events[i+1:]...)
			return
		}
	}
}

// Package sched registers note events on the transport: one-shot sequences
// (parts) and the interleaved loop pair. It owns every event handle it
// creates so teardown can remove them before they fire.
package sched

import (
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/satindergrewal/tonebox/internal/audio"
	"github.com/satindergrewal/tonebox/internal/transport"
)

var (
	ErrEmptySequence = errors.New("sequence has no notes")
	ErrInvalidRest   = errors.New("rest time must be a positive number of seconds")
)

// NoteEvent is the payload of one scheduled note.
type NoteEvent struct {
	Note  string `json:"note"`
	Index int    `json:"index"`
}

// Offset places a note event relative to the start of its part, in seconds.
type Offset struct {
	At    float64
	Event NoteEvent
}

// SequenceOffsets spaces notes rest seconds apart starting at zero.
func SequenceOffsets(notes []string, rest float64) []Offset {
	out := make([]Offset, len(notes))
	for i, n := range notes {
		out[i] = Offset{At: float64(i) * rest, Event: NoteEvent{Note: n, Index: i}}
	}
	return out
}

// Voice is what the scheduler triggers.
type Voice interface {
	TriggerAttackRelease(freq, dur, at float64) error
}

// SequenceHooks receive part callbacks. All are optional and run on the
// render path with the exact clock time of the event.
type SequenceHooks struct {
	OnNote  func(ev NoteEvent, at, dur float64)
	OnStop  func(at float64)
	OnError func(ev NoteEvent, err error)
}

// Part is a scheduled one-shot sequence.
type Part struct {
	events []*transport.Event
	offs   []Offset
	stopAt float64
}

// Offsets returns the note offsets of the part.
func (p *Part) Offsets() []Offset { return p.offs }

// StopOffset returns the part length in seconds.
func (p *Part) StopOffset() float64 { return p.stopAt }

// Dispose removes every event of the part that has not fired yet.
func (p *Part) Dispose() {
	for _, ev := range p.events {
		ev.Dispose()
	}
}

// ValidateSequence checks sequence input and returns the note frequencies.
func ValidateSequence(notes []string, rest float64) ([]float64, error) {
	if len(notes) == 0 {
		return nil, ErrEmptySequence
	}
	if rest <= 0 || math.IsNaN(rest) || math.IsInf(rest, 0) {
		return nil, errors.Wrapf(ErrInvalidRest, "%v", rest)
	}
	freqs := make([]float64, len(notes))
	for i, n := range notes {
		note, err := audio.ParseNote(n)
		if err != nil {
			return nil, errors.Wrapf(err, "note %d", i)
		}
		freqs[i] = note.Freq
	}
	return freqs, nil
}

// Scheduler tracks the active part and loops on one transport. Not safe for
// concurrent use.
type Scheduler struct {
	tr    *transport.Transport
	log   *logrus.Entry
	part  *Part
	loops []*transport.Event
}

// New creates a scheduler bound to tr.
func New(tr *transport.Transport, log *logrus.Entry) *Scheduler {
	if log == nil {
		log = logrus.WithField("component", "sched")
	}
	return &Scheduler{tr: tr, log: log}
}

// Eighth returns the length of an eighth note at the current tempo.
func (s *Scheduler) Eighth() float64 {
	return s.tr.TicksToSeconds(transport.PPQ / 2)
}

// StartSequence schedules notes rest seconds apart from the current
// transport position, each sounding for an eighth note on v. A stop event
// at len(notes)*rest calls OnStop. Any previous part is disposed first.
func (s *Scheduler) StartSequence(notes []string, rest float64, v Voice, hooks SequenceHooks) (*Part, error) {
	freqs, err := ValidateSequence(notes, rest)
	if err != nil {
		return nil, err
	}

	s.disposePart()

	anchor := s.tr.Position()
	p := &Part{offs: SequenceOffsets(notes, rest), stopAt: float64(len(notes)) * rest}
	for i, off := range p.offs {
		ev, freq := off.Event, freqs[i]
		h := s.tr.Schedule(anchor+s.tr.SecondsToTicks(off.At), func(at float64) {
			dur := s.Eighth()
			if err := v.TriggerAttackRelease(freq, dur, at); err != nil {
				if hooks.OnError != nil {
					hooks.OnError(ev, err)
				}
				return
			}
			if hooks.OnNote != nil {
				hooks.OnNote(ev, at, dur)
			}
		})
		p.events = append(p.events, h)
	}
	stop := s.tr.Schedule(anchor+s.tr.SecondsToTicks(p.stopAt), func(at float64) {
		if hooks.OnStop != nil {
			hooks.OnStop(at)
		}
	})
	p.events = append(p.events, stop)
	s.part = p
	return p, nil
}

// StartLoopPair starts two quarter-note loops from the current position,
// b an eighth note behind a. onFire, if set, sees every firing with index 0
// for a and 1 for b. Loops already running are disposed first.
func (s *Scheduler) StartLoopPair(a, b Voice, noteA, noteB string, onFire func(ev NoteEvent, at float64)) error {
	na, err := audio.ParseNote(noteA)
	if err != nil {
		return errors.Wrap(err, "loop a")
	}
	nb, err := audio.ParseNote(noteB)
	if err != nil {
		return errors.Wrap(err, "loop b")
	}

	s.disposeLoops()

	anchor := s.tr.Position()
	s.loops = append(s.loops,
		s.tr.ScheduleRepeat(transport.PPQ, anchor, s.loopFunc(a, na, 0, onFire)),
		s.tr.ScheduleRepeat(transport.PPQ, anchor+transport.PPQ/2, s.loopFunc(b, nb, 1, onFire)),
	)
	return nil
}

func (s *Scheduler) loopFunc(v Voice, n audio.Note, idx int, onFire func(NoteEvent, float64)) func(float64) {
	ev := NoteEvent{Note: n.Name, Index: idx}
	return func(at float64) {
		if err := v.TriggerAttackRelease(n.Freq, s.Eighth(), at); err != nil {
			s.log.WithError(err).WithField("note", n.Name).Error("Loop trigger failed")
			return
		}
		if onFire != nil {
			onFire(ev, at)
		}
	}
}

// StopAll disposes every part and loop handle and clears the registry.
// Safe to call when nothing is scheduled.
func (s *Scheduler) StopAll() {
	s.disposePart()
	s.disposeLoops()
}

// Active returns the number of registered parts and loops.
func (s *Scheduler) Active() (parts, loops int) {
	if s.part != nil {
		parts = 1
	}
	return parts, len(s.loops)
}

func (s *Scheduler) disposePart() {
	if s.part != nil {
		s.part.Dispose()
		s.part = nil
	}
}

func (s *Scheduler) disposeLoops() {
	for _, l := range s.loops {
		l.Dispose()
	}
	s.loops = nil
}

package engine

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/satindergrewal/tonebox/internal/audio"
	"github.com/satindergrewal/tonebox/internal/sched"
	"github.com/satindergrewal/tonebox/internal/state"
	"github.com/satindergrewal/tonebox/internal/transport"
)

// Kind names what a session plays.
type Kind string

const (
	KindNote     Kind = "note"
	KindSequence Kind = "sequence"
	KindLoop     Kind = "loop"
)

// session is one play-and-cleanup lifecycle. Every clock timer it arms is
// recorded so teardown can cancel it.
type session struct {
	id     string
	kind   Kind
	start  float64
	timers []*transport.Timer
	log    *logrus.Entry
}

func (e *Engine) beginLocked(kind Kind) *session {
	s := &session{id: uuid.NewString(), kind: kind, start: e.clock.Now()}
	s.log = e.log.WithFields(logrus.Fields{"session": s.id, "kind": kind})
	e.session = s
	e.store.SetSession(s.id)
	e.store.SetPhase(state.Initializing)
	return s
}

func (e *Engine) activateLocked(s *session) {
	e.setPlayingLocked(true)
	e.store.SetPhase(state.Active)
	e.publishTransportLocked()
	s.log.Info("Session started")
}

// after arms a session timer d seconds from at.
func (e *Engine) afterLocked(s *session, at, d float64, fn func()) {
	s.timers = append(s.timers, e.clock.At(at+d, func(float64) { fn() }))
}

// finishLocked ends s naturally if it is still the current session.
func (e *Engine) finishLocked(s *session) {
	if e.session != s {
		return
	}
	e.teardownLocked(s, "completed", false)
}

// teardownLocked returns the engine to Idle: transport stopped at its
// current tempo, scheduled events and session timers disposed, ensemble voices disposed, feed
// stopped, note cleared. interrupt also silences the primary voice's
// pending triggers.
func (e *Engine) teardownLocked(s *session, reason string, interrupt bool) {
	e.tr.Stop()
	e.tr.HoldTempo()
	e.sched.StopAll()
	for _, tm := range s.timers {
		tm.Cancel()
	}
	s.timers = nil
	if p := e.pool.Primary(); interrupt && p != nil && !p.Disposed() {
		now := e.clock.Now()
		p.CancelAfter(now)
		if p.Sounding() {
			p.TriggerRelease(now)
		}
	}
	e.pool.DisposeEnsemble()
	e.setPlayingLocked(false)
	if tap := e.pool.Tap(); tap != nil {
		tap.Reset()
	}
	e.store.ClearNote()
	e.store.SetSession("")
	e.store.SetPhase(state.Idle)
	e.publishTransportLocked()
	e.session = nil
	s.log.WithField("elapsed", e.clock.Now()-s.start).Infof("Session %s", reason)
}

// supersedeLocked tears down the current session, if any, before a new
// one starts.
func (e *Engine) supersedeLocked() {
	if e.session != nil {
		e.teardownLocked(e.session, "superseded", true)
	}
}

func (e *Engine) publishTransportLocked() {
	e.store.SetTransport(e.tr.BPM(), e.tr.PositionString())
}

// PlaySingleNote sounds note on the primary voice: attack now, release one
// second later. The session stays Active for the single-note window of
// clock time, then returns to Idle while the release rings out.
func (e *Engine) PlaySingleNote(note string) error {
	if e.headless {
		return nil
	}
	n, err := audio.ParseNote(note)
	if err != nil {
		return err
	}
	if err := e.ensureContext(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.supersedeLocked()
	s := e.beginLocked(KindNote)

	v := e.ensureFeedLocked()
	now := e.clock.Now()
	if err := v.TriggerAttack(n.Freq, now); err != nil {
		e.programmerError(err)
	}
	if err := v.TriggerRelease(now + 1); err != nil {
		e.programmerError(err)
	}
	e.store.SetNote(note, 0)
	e.activateLocked(s)
	e.afterLocked(s, now, e.cfg.SingleNoteWindow.Seconds(), func() { e.finishLocked(s) })
	return nil
}

// PlaySequence plays notes rest seconds apart on the primary voice, each
// for an eighth note, publishing the sounding note and index. A nil notes
// uses the configured default sequence and rest 0 the default gap. The
// session completes the completion tail after the last offset.
func (e *Engine) PlaySequence(notes []string, rest float64) error {
	if e.headless {
		return nil
	}
	if notes == nil {
		notes = e.cfg.Sequence
	}
	if rest == 0 {
		rest = e.cfg.RestTime
	}
	if _, err := sched.ValidateSequence(notes, rest); err != nil {
		return err
	}
	if err := e.ensureContext(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.supersedeLocked()
	s := e.beginLocked(KindSequence)

	v := e.ensureFeedLocked()
	e.tr.Start()
	tail := e.cfg.CompletionTail.Seconds()
	_, err := e.sched.StartSequence(notes, rest, v, sched.SequenceHooks{
		OnNote: func(ev sched.NoteEvent, at, dur float64) {
			tok := e.store.SetNote(ev.Note, ev.Index)
			e.afterLocked(s, at, dur, func() { e.store.ClearNoteIf(tok) })
		},
		OnStop: func(at float64) {
			e.store.SetPhase(state.Completing)
			e.afterLocked(s, at, tail, func() { e.finishLocked(s) })
		},
		OnError: func(ev sched.NoteEvent, err error) {
			s.log.WithField("index", ev.Index).WithError(err).Error("Note trigger failed")
			e.programmerError(err)
		},
	})
	if err != nil {
		e.teardownLocked(s, "failed", true)
		return err
	}
	e.activateLocked(s)
	return nil
}

// StartLoopPair creates a fresh FM/AM voice pair and loops the configured
// notes on them every quarter note, the second an eighth behind the first.
// The transport tempo ramps to the configured target. The loops run until
// StopLoopPair.
func (e *Engine) StartLoopPair() error {
	if e.headless {
		return nil
	}
	if err := e.ensureContext(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.supersedeLocked()
	s := e.beginLocked(KindLoop)

	e.ensureFeedLocked()
	fm, am := e.pool.CreateEnsemble()
	e.tr.Start()
	if err := e.sched.StartLoopPair(fm, am, e.cfg.LoopNoteA, e.cfg.LoopNoteB, nil); err != nil {
		e.teardownLocked(s, "failed", true)
		return err
	}
	if e.cfg.LoopRampBPM > 0 {
		if err := e.tr.RampTempo(e.cfg.LoopRampBPM, e.cfg.LoopRampSeconds); err != nil {
			s.log.WithError(err).Warn("Tempo ramp skipped")
		}
	}
	e.activateLocked(s)
	return nil
}

// StopLoopPair stops the loop pair. It is the same teardown as
// StopScheduled.
func (e *Engine) StopLoopPair() error {
	return e.StopScheduled()
}

// StopScheduled tears down whatever session is active. With nothing active
// it leaves the state unchanged.
func (e *Engine) StopScheduled() error {
	if e.headless {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		e.tr.Stop()
		e.sched.StopAll()
		return nil
	}
	e.teardownLocked(e.session, "stopped", true)
	return nil
}

// Session returns the active session id and kind, or empty values.
func (e *Engine) Session() (id string, kind Kind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return "", ""
	}
	return e.session.id, e.session.kind
}

package sched

import (
	"math"
	"testing"

	"github.com/pkg/errors"

	"github.com/satindergrewal/tonebox/internal/audio"
	"github.com/satindergrewal/tonebox/internal/transport"
)

type trigger struct{ freq, dur, at float64 }

type fakeVoice struct {
	calls []trigger
	err   error
}

func (f *fakeVoice) TriggerAttackRelease(freq, dur, at float64) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, trigger{freq, dur, at})
	return nil
}

func newTransport() *transport.Transport {
	tr := transport.New(transport.NewClock(audio.SampleRate), 120)
	tr.Start()
	return tr
}

func run(tr *transport.Transport, seconds float64) {
	n := int(math.Round(seconds * audio.SampleRate))
	for n > 0 {
		b := audio.BlockSize
		if n < b {
			b = n
		}
		tr.Advance(b)
		tr.Clock().Advance(b)
		n -= b
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestSequenceOffsets(t *testing.T) {
	offs := SequenceOffsets([]string{"C4", "D4", "E4", "F4"}, 0.3)
	if len(offs) != 4 {
		t.Fatalf("len = %d, want 4", len(offs))
	}
	for i, o := range offs {
		if !near(o.At, float64(i)*0.3) {
			t.Errorf("offset %d = %v, want %v", i, o.At, float64(i)*0.3)
		}
		if o.Event.Index != i {
			t.Errorf("offset %d index = %d", i, o.Event.Index)
		}
	}
}

func TestStartSequenceFiresAtOffsets(t *testing.T) {
	tr := newTransport()
	s := New(tr, nil)
	v := &fakeVoice{}

	var notes []NoteEvent
	var ats []float64
	stopAt := -1.0
	part, err := s.StartSequence([]string{"C4", "E4", "G4"}, 0.5, v, SequenceHooks{
		OnNote: func(ev NoteEvent, at, dur float64) {
			notes = append(notes, ev)
			ats = append(ats, at)
			if !near(dur, 0.25) {
				t.Errorf("note duration = %v, want an eighth (0.25s)", dur)
			}
		},
		OnStop: func(at float64) { stopAt = at },
	})
	if err != nil {
		t.Fatalf("StartSequence: %v", err)
	}
	if !near(part.StopOffset(), 1.5) {
		t.Errorf("StopOffset = %v, want 1.5", part.StopOffset())
	}

	run(tr, 2)
	if len(notes) != 3 {
		t.Fatalf("fired %d notes, want 3", len(notes))
	}
	for i := range notes {
		if notes[i].Index != i || !near(ats[i], float64(i)*0.5) {
			t.Errorf("note %d = %+v at %v, want index %d at %v", i, notes[i], ats[i], i, float64(i)*0.5)
		}
		if !near(v.calls[i].at, ats[i]) {
			t.Errorf("voice triggered at %v, want %v", v.calls[i].at, ats[i])
		}
	}
	if math.Abs(v.calls[1].freq-329.6276) > 1e-3 {
		t.Errorf("E4 triggered at %v Hz", v.calls[1].freq)
	}
	if !near(stopAt, 1.5) {
		t.Errorf("stop event at %v, want 1.5", stopAt)
	}
}

func TestStartSequenceAnchoredAtPosition(t *testing.T) {
	tr := newTransport()
	s := New(tr, nil)
	run(tr, 0.3)
	start := tr.Now()
	v := &fakeVoice{}
	if _, err := s.StartSequence([]string{"A4", "A4"}, 0.5, v, SequenceHooks{}); err != nil {
		t.Fatal(err)
	}
	run(tr, 1)
	if len(v.calls) != 2 {
		t.Fatalf("fired %d notes, want 2", len(v.calls))
	}
	if math.Abs(v.calls[0].at-start) > 1e-3 || math.Abs(v.calls[1].at-start-0.5) > 1e-3 {
		t.Errorf("fired at %v/%v, want %v/%v", v.calls[0].at, v.calls[1].at, start, start+0.5)
	}
}

func TestStartSequenceValidates(t *testing.T) {
	s := New(newTransport(), nil)
	v := &fakeVoice{}
	if _, err := s.StartSequence(nil, 0.5, v, SequenceHooks{}); !errors.Is(err, ErrEmptySequence) {
		t.Errorf("empty err = %v, want ErrEmptySequence", err)
	}
	for _, rest := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := s.StartSequence([]string{"C4"}, rest, v, SequenceHooks{}); !errors.Is(err, ErrInvalidRest) {
			t.Errorf("rest %v err = %v, want ErrInvalidRest", rest, err)
		}
	}
	if _, err := s.StartSequence([]string{"C4", "nope"}, 0.5, v, SequenceHooks{}); !errors.Is(err, audio.ErrUnknownNote) {
		t.Errorf("bad note err = %v, want ErrUnknownNote", err)
	}
	if p, l := s.Active(); p != 0 || l != 0 {
		t.Errorf("failed starts registered %d parts, %d loops", p, l)
	}
}

func TestStartSequenceDisposesPrior(t *testing.T) {
	tr := newTransport()
	s := New(tr, nil)
	v := &fakeVoice{}

	var first, second int
	firstStopped := false
	s.StartSequence([]string{"C4", "D4", "E4"}, 0.5, v, SequenceHooks{
		OnNote: func(NoteEvent, float64, float64) { first++ },
		OnStop: func(float64) { firstStopped = true },
	})
	run(tr, 0.1)
	s.StartSequence([]string{"G4", "A4"}, 0.5, v, SequenceHooks{
		OnNote: func(NoteEvent, float64, float64) { second++ },
	})
	run(tr, 3)

	if first != 1 {
		t.Errorf("prior sequence fired %d notes, want only the one before restart", first)
	}
	if firstStopped {
		t.Error("prior sequence stop event fired after restart")
	}
	if second != 2 {
		t.Errorf("new sequence fired %d notes, want 2", second)
	}
	if p, _ := s.Active(); p != 1 {
		t.Errorf("Active parts = %d, want 1", p)
	}
}

func TestStopAllSuppressesCallbacks(t *testing.T) {
	tr := newTransport()
	s := New(tr, nil)
	v := &fakeVoice{}
	fired := 0
	stopped := false
	s.StartSequence([]string{"C4", "D4", "E4", "F4"}, 0.5, v, SequenceHooks{
		OnNote: func(NoteEvent, float64, float64) { fired++ },
		OnStop: func(float64) { stopped = true },
	})
	run(tr, 0.6)
	s.StopAll()
	s.StopAll()
	run(tr, 3)
	if fired != 2 {
		t.Errorf("fired %d notes, want 2 before StopAll", fired)
	}
	if stopped {
		t.Error("stop event fired after StopAll")
	}
	if p, l := s.Active(); p != 0 || l != 0 {
		t.Errorf("Active after StopAll = %d, %d", p, l)
	}
	if tr.Scheduled() != 0 {
		t.Errorf("transport still holds %d events", tr.Scheduled())
	}
}

func TestSequenceVoiceErrorReported(t *testing.T) {
	tr := newTransport()
	s := New(tr, nil)
	v := &fakeVoice{err: audio.ErrDisposed}
	var errs []error
	published := 0
	s.StartSequence([]string{"C4"}, 0.5, v, SequenceHooks{
		OnNote:  func(NoteEvent, float64, float64) { published++ },
		OnError: func(_ NoteEvent, err error) { errs = append(errs, err) },
	})
	run(tr, 0.1)
	if len(errs) != 1 || !errors.Is(errs[0], audio.ErrDisposed) {
		t.Errorf("errors = %v, want one ErrDisposed", errs)
	}
	if published != 0 {
		t.Error("failed trigger still published a note")
	}
}

func TestLoopPairInterleaves(t *testing.T) {
	tr := newTransport()
	s := New(tr, nil)
	a, b := &fakeVoice{}, &fakeVoice{}

	var hits []NoteEvent
	if err := s.StartLoopPair(a, b, "C2", "C4", func(ev NoteEvent, _ float64) {
		hits = append(hits, ev)
	}); err != nil {
		t.Fatalf("StartLoopPair: %v", err)
	}
	run(tr, 1.1)

	if len(a.calls) != 3 || len(b.calls) != 2 {
		t.Fatalf("a fired %d, b fired %d; want 3 and 2", len(a.calls), len(b.calls))
	}
	if d := b.calls[0].at - a.calls[0].at; !near(d, 0.25) {
		t.Errorf("b first firing %v after a, want an eighth note (0.25s)", d)
	}
	if d := a.calls[1].at - a.calls[0].at; !near(d, 0.5) {
		t.Errorf("a interval = %v, want a quarter note (0.5s)", d)
	}
	if hits[0].Index != 0 || hits[1].Index != 1 {
		t.Errorf("firing order = %+v, want a then b", hits[:2])
	}
	if _, l := s.Active(); l != 2 {
		t.Errorf("Active loops = %d, want 2", l)
	}

	s.StopAll()
	na, nb := len(a.calls), len(b.calls)
	run(tr, 2)
	if len(a.calls) != na || len(b.calls) != nb {
		t.Errorf("loops fired after StopAll: a %d->%d, b %d->%d", na, len(a.calls), nb, len(b.calls))
	}
}

func TestLoopPairBadNote(t *testing.T) {
	s := New(newTransport(), nil)
	if err := s.StartLoopPair(&fakeVoice{}, &fakeVoice{}, "C2", "zz", nil); !errors.Is(err, audio.ErrUnknownNote) {
		t.Errorf("err = %v, want ErrUnknownNote", err)
	}
	if _, l := s.Active(); l != 0 {
		t.Errorf("Active loops = %d after failed start", l)
	}
}

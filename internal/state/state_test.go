package state

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestInertSnapshot(t *testing.T) {
	s := NewStore().Snapshot()
	if s.IsPlaying || s.Note != nil || s.Waveform != nil || s.TransportNow != 0 || s.Phase != Idle {
		t.Errorf("new store snapshot = %+v, want inert", s)
	}
}

func TestSnapshotJSONNullPair(t *testing.T) {
	b, err := json.Marshal(Inert())
	if err != nil {
		t.Fatal(err)
	}
	got := string(b)
	for _, want := range []string{`"isPlaying":false`, `"currentNote":null`, `"currentIndex":null`, `"waveform":null`, `"transportNow":0`, `"phase":"idle"`} {
		if !strings.Contains(got, want) {
			t.Errorf("JSON %s missing %s", got, want)
		}
	}
	if strings.Contains(got, "session") {
		t.Errorf("JSON %s carries an empty session", got)
	}
}

func TestSnapshotJSONNoteSet(t *testing.T) {
	in := Snapshot{IsPlaying: true, Note: &Note{Name: "E4", Index: 2}, Waveform: []float32{0, 0.5}, Phase: Active, Session: "abc"}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"currentNote":"E4","currentIndex":2`) {
		t.Errorf("JSON %s does not carry the note pair", b)
	}

	var out Snapshot
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if out.Note == nil || *out.Note != *in.Note || out.Session != "abc" || len(out.Waveform) != 2 {
		t.Errorf("decoded %+v, want %+v", out, in)
	}
}

func TestSnapshotJSONHalfPairDropped(t *testing.T) {
	var out Snapshot
	if err := json.Unmarshal([]byte(`{"currentNote":"C4","currentIndex":null}`), &out); err != nil {
		t.Fatal(err)
	}
	if out.Note != nil {
		t.Errorf("note restored from half a pair: %+v", out.Note)
	}
}

func TestSetPlayingReportsChange(t *testing.T) {
	st := NewStore()
	if !st.SetPlaying(true) {
		t.Error("SetPlaying(true) on idle store reported no change")
	}
	if st.SetPlaying(true) {
		t.Error("repeat SetPlaying(true) reported a change")
	}
	if !st.Playing() {
		t.Error("Playing() = false")
	}
}

func TestClearNoteIfOnlyClearsOwnNote(t *testing.T) {
	st := NewStore()
	first := st.SetNote("C4", 0)
	second := st.SetNote("D4", 1)

	if st.ClearNoteIf(first) {
		t.Error("stale token cleared a newer note")
	}
	if n := st.Snapshot().Note; n == nil || n.Name != "D4" {
		t.Fatalf("note = %+v, want D4", n)
	}
	if !st.ClearNoteIf(second) {
		t.Error("current token did not clear")
	}
	if st.Snapshot().Note != nil {
		t.Error("note still set")
	}
	if st.ClearNoteIf(second) {
		t.Error("clearing twice reported a change")
	}
}

func TestSetWaveformCopies(t *testing.T) {
	st := NewStore()
	buf := []float32{1, 2, 3}
	st.SetWaveform(buf)
	buf[0] = 9
	if st.Snapshot().Waveform[0] != 1 {
		t.Error("store aliases the caller's buffer")
	}
	st.SetWaveform(nil)
	if st.Snapshot().Waveform != nil {
		t.Error("SetWaveform(nil) kept a buffer")
	}
}

func TestSubscribersSeeUpdates(t *testing.T) {
	st := NewStore()
	l := st.Subscribe()
	defer st.Unsubscribe(l)
	if st.Subscribers() != 1 {
		t.Fatalf("Subscribers = %d, want 1", st.Subscribers())
	}

	st.SetPhase(Active)
	st.SetPhase(Active) // unchanged, not published
	st.SetNote("A4", 3)

	var last Snapshot
	timeout := time.After(time.Second)
	for last.Note == nil {
		select {
		case last = <-l.C:
		case <-timeout:
			t.Fatal("Timeout waiting for note snapshot")
		}
	}
	if last.Phase != Active || last.Note.Name != "A4" || last.Note.Index != 3 {
		t.Errorf("last snapshot = %+v", last)
	}
}

// Package state holds the published playback state that render layers read.
// Only the engine writes it.
package state

import (
	"encoding/json"
	"sync"

	"github.com/satindergrewal/tonebox/internal/fanout"
)

// Phase is the session lifecycle stage.
type Phase string

const (
	Idle         Phase = "idle"
	Initializing Phase = "initializing"
	Active       Phase = "active"
	Completing   Phase = "completing"
)

// Note is the currently sounding scheduled note.
type Note struct {
	Name  string
	Index int
}

// Snapshot is one consistent view of the published state. A nil Note means
// both currentNote and currentIndex are null.
type Snapshot struct {
	IsPlaying    bool
	Note         *Note
	Waveform     []float32
	TransportNow float64
	Phase        Phase
	BPM          float64
	Position     string
	Session      string
}

type snapshotJSON struct {
	IsPlaying    bool      `json:"isPlaying"`
	CurrentNote  *string   `json:"currentNote"`
	CurrentIndex *int      `json:"currentIndex"`
	Waveform     []float32 `json:"waveform"`
	TransportNow float64   `json:"transportNow"`
	Phase        Phase     `json:"phase"`
	BPM          float64   `json:"bpm"`
	Position     string    `json:"position"`
	Session      string    `json:"session,omitempty"`
}

// MarshalJSON flattens Note into the currentNote/currentIndex pair.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := snapshotJSON{
		IsPlaying:    s.IsPlaying,
		Waveform:     s.Waveform,
		TransportNow: s.TransportNow,
		Phase:        s.Phase,
		BPM:          s.BPM,
		Position:     s.Position,
		Session:      s.Session,
	}
	if s.Note != nil {
		name, idx := s.Note.Name, s.Note.Index
		out.CurrentNote, out.CurrentIndex = &name, &idx
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts what MarshalJSON produces. A note is only restored
// when both fields are present.
func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var in snapshotJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*s = Snapshot{
		IsPlaying:    in.IsPlaying,
		Waveform:     in.Waveform,
		TransportNow: in.TransportNow,
		Phase:        in.Phase,
		BPM:          in.BPM,
		Position:     in.Position,
		Session:      in.Session,
	}
	if in.CurrentNote != nil && in.CurrentIndex != nil {
		s.Note = &Note{Name: *in.CurrentNote, Index: *in.CurrentIndex}
	}
	return nil
}

// Inert returns the state published when nothing has ever played.
func Inert() Snapshot {
	return Snapshot{Phase: Idle, Position: "0:0:0"}
}

// Store is the single writer-side owner of the published snapshot. Every
// change is pushed to subscribers.
type Store struct {
	mu      sync.RWMutex
	snap    Snapshot
	noteSeq uint64
	noteTok uint64
	hub     *fanout.Hub[Snapshot]
}

// NewStore creates a store holding the inert snapshot.
func NewStore() *Store {
	return &Store{
		snap: Inert(),
		hub:  fanout.NewHub[Snapshot](4, fanout.DropOldest),
	}
}

// Snapshot returns the current state. The waveform slice is shared and must
// not be modified.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Subscribe returns a listener that receives every published snapshot.
func (s *Store) Subscribe() *fanout.Listener[Snapshot] { return s.hub.Subscribe() }

// Unsubscribe stops delivery to l.
func (s *Store) Unsubscribe(l *fanout.Listener[Snapshot]) { s.hub.Unsubscribe(l) }

// Subscribers returns the number of listeners.
func (s *Store) Subscribers() int { return s.hub.ListenerCount() }

// Update applies fn and publishes the result once.
func (s *Store) Update(fn func(*Snapshot)) {
	s.mu.Lock()
	fn(&s.snap)
	snap := s.snap
	s.mu.Unlock()
	s.hub.Publish(snap)
}

// SetPlaying sets isPlaying and reports whether it changed.
func (s *Store) SetPlaying(playing bool) bool {
	s.mu.Lock()
	if s.snap.IsPlaying == playing {
		s.mu.Unlock()
		return false
	}
	s.snap.IsPlaying = playing
	snap := s.snap
	s.mu.Unlock()
	s.hub.Publish(snap)
	return true
}

// Playing reports isPlaying.
func (s *Store) Playing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.IsPlaying
}

// SetNote publishes name and index together. The returned token identifies
// this publication for ClearNoteIf.
func (s *Store) SetNote(name string, index int) uint64 {
	var tok uint64
	s.Update(func(snap *Snapshot) {
		s.noteSeq++
		tok = s.noteSeq
		s.noteTok = tok
		snap.Note = &Note{Name: name, Index: index}
	})
	return tok
}

// ClearNote nulls currentNote and currentIndex.
func (s *Store) ClearNote() {
	s.mu.Lock()
	if s.snap.Note == nil {
		s.mu.Unlock()
		return
	}
	s.snap.Note = nil
	s.noteTok = 0
	snap := s.snap
	s.mu.Unlock()
	s.hub.Publish(snap)
}

// ClearNoteIf clears the note only if it is still the publication tok
// refers to. It reports whether anything was cleared.
func (s *Store) ClearNoteIf(tok uint64) bool {
	s.mu.Lock()
	if s.snap.Note == nil || s.noteTok != tok {
		s.mu.Unlock()
		return false
	}
	s.snap.Note = nil
	s.noteTok = 0
	snap := s.snap
	s.mu.Unlock()
	s.hub.Publish(snap)
	return true
}

// SetWaveform publishes a copy of buf.
func (s *Store) SetWaveform(buf []float32) {
	var wf []float32
	if buf != nil {
		wf = append([]float32(nil), buf...)
	}
	s.Update(func(snap *Snapshot) { snap.Waveform = wf })
}

// SetTransportNow publishes the polled clock time.
func (s *Store) SetTransportNow(now float64) {
	s.Update(func(snap *Snapshot) { snap.TransportNow = now })
}

// SetTransport publishes tempo and position.
func (s *Store) SetTransport(bpm float64, position string) {
	s.Update(func(snap *Snapshot) {
		snap.BPM = bpm
		snap.Position = position
	})
}

// SetPhase publishes the session phase.
func (s *Store) SetPhase(p Phase) {
	s.mu.Lock()
	if s.snap.Phase == p {
		s.mu.Unlock()
		return
	}
	s.snap.Phase = p
	snap := s.snap
	s.mu.Unlock()
	s.hub.Publish(snap)
}

// SetSession publishes the active session id, empty when idle.
func (s *Store) SetSession(id string) {
	s.Update(func(snap *Snapshot) { snap.Session = id })
}

// Package midiout mirrors the published note to a MIDI output port so
// external synths and visualizers can follow playback.
package midiout

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2"

	"github.com/satindergrewal/tonebox/internal/audio"
	"github.com/satindergrewal/tonebox/internal/fanout"
	"github.com/satindergrewal/tonebox/internal/state"
)

// Sender writes one MIDI message.
type Sender func(midi.Message) error

// Source is the published state to mirror.
type Source interface {
	Subscribe() *fanout.Listener[state.Snapshot]
	Unsubscribe(l *fanout.Listener[state.Snapshot])
}

// Open finds the named output port and returns a sender for it. A MIDI
// driver must be registered by the caller.
func Open(port string) (Sender, error) {
	out, err := midi.FindOutPort(port)
	if err != nil {
		return nil, errors.Wrapf(err, "find MIDI out port %q", port)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		return nil, errors.Wrapf(err, "open MIDI out port %q", port)
	}
	return send, nil
}

// Mirror turns note changes in the published state into NoteOn/NoteOff.
type Mirror struct {
	src      Source
	send     Sender
	log      *logrus.Entry
	Channel  uint8
	Velocity uint8

	key     uint8
	playing bool
}

// NewMirror creates a mirror on channel 0 with velocity 100.
func NewMirror(src Source, send Sender, log *logrus.Entry) *Mirror {
	if log == nil {
		log = logrus.WithField("component", "midiout")
	}
	return &Mirror{src: src, send: send, log: log, Velocity: 100}
}

// Run mirrors snapshots until ctx is done, then releases any held note.
func (m *Mirror) Run(ctx context.Context) {
	l := m.src.Subscribe()
	defer m.src.Unsubscribe(l)
	defer m.off()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.Done():
			return
		case snap := <-l.C:
			m.apply(snap)
		}
	}
}

func (m *Mirror) apply(snap state.Snapshot) {
	if snap.Note == nil {
		m.off()
		return
	}
	n, err := audio.ParseNote(snap.Note.Name)
	if err != nil {
		m.log.WithError(err).Debug("Note not mirrored")
		return
	}
	if n.Key < 0 || n.Key > 127 {
		m.log.WithField("key", n.Key).Debug("Note outside MIDI range")
		return
	}
	key := uint8(n.Key)
	if m.playing && m.key == key {
		return
	}
	m.off()
	if err := m.send(midi.NoteOn(m.Channel, key, m.Velocity)); err != nil {
		m.log.WithError(err).Warn("MIDI send failed")
		return
	}
	m.key, m.playing = key, true
}

func (m *Mirror) off() {
	if !m.playing {
		return
	}
	m.playing = false
	if err := m.send(midi.NoteOff(m.Channel, m.key)); err != nil {
		m.log.WithError(err).Warn("MIDI send failed")
	}
}

// Package tui is a terminal render layer: it reads the published state and
// maps keys to engine operations.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/satindergrewal/tonebox/internal/fanout"
	"github.com/satindergrewal/tonebox/internal/state"
)

// Controller is the engine surface the TUI drives.
type Controller interface {
	PlaySingleNote(note string) error
	PlaySequence(notes []string, rest float64) error
	StartLoopPair() error
	StopScheduled() error
	StartTimeObserver() error
	StopTimeObserver() error
	ObserverRunning() bool
}

// Source is the published state the TUI renders.
type Source interface {
	Snapshot() state.Snapshot
	Subscribe() *fanout.Listener[state.Snapshot]
	Unsubscribe(l *fanout.Listener[state.Snapshot])
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	playingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	noteStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	waveStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const waveWidth = 64

// SnapshotMsg carries a published snapshot into the update loop.
type SnapshotMsg state.Snapshot

// Model is the bubbletea model.
type Model struct {
	ctrl     Controller
	src      Source
	listener *fanout.Listener[state.Snapshot]
	notes    []string
	snap     state.Snapshot
	err      error
	quitting bool
}

// NewModel subscribes to src. notes are the keys 1..9 play as single
// notes.
func NewModel(ctrl Controller, src Source, notes []string) Model {
	return Model{
		ctrl:     ctrl,
		src:      src,
		listener: src.Subscribe(),
		notes:    notes,
		snap:     src.Snapshot(),
	}
}

// Snapshot returns the last rendered snapshot.
func (m Model) Snapshot() state.Snapshot { return m.snap }

// Err returns the last operation error.
func (m Model) Err() error { return m.err }

func listen(l *fanout.Listener[state.Snapshot]) tea.Cmd {
	return func() tea.Msg {
		select {
		case s := <-l.C:
			return SnapshotMsg(s)
		case <-l.Done():
			return nil
		}
	}
}

func (m Model) Init() tea.Cmd {
	return listen(m.listener)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "q", "ctrl+c":
			m.quitting = true
			m.ctrl.StopScheduled()
			m.ctrl.StopTimeObserver()
			m.src.Unsubscribe(m.listener)
			return m, tea.Quit
		case "s":
			m.err = m.ctrl.PlaySequence(nil, 0)
		case "l":
			m.err = m.ctrl.StartLoopPair()
		case "x":
			m.err = m.ctrl.StopScheduled()
		case "t":
			if m.ctrl.ObserverRunning() {
				m.err = m.ctrl.StopTimeObserver()
			} else {
				m.err = m.ctrl.StartTimeObserver()
			}
		default:
			if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
				if i := int(key[0] - '1'); i < len(m.notes) {
					m.err = m.ctrl.PlaySingleNote(m.notes[i])
				}
			}
		}

	case SnapshotMsg:
		m.snap = state.Snapshot(msg)
		return m, listen(m.listener)
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	s := m.snap
	var b strings.Builder

	b.WriteString(titleStyle.Render("tonebox"))
	b.WriteString("\n\n")

	if s.IsPlaying {
		b.WriteString(playingStyle.Render("● playing"))
	} else {
		b.WriteString(idleStyle.Render("○ idle"))
	}
	fmt.Fprintf(&b, "  phase %s\n", s.Phase)

	note := "-"
	if s.Note != nil {
		note = fmt.Sprintf("%s #%d", s.Note.Name, s.Note.Index)
	}
	fmt.Fprintf(&b, "note  %s\n", noteStyle.Render(note))
	fmt.Fprintf(&b, "bpm   %.1f  pos %s  now %.2fs\n\n", s.BPM, s.Position, s.TransportNow)

	b.WriteString(waveStyle.Render(Sparkline(s.Waveform, waveWidth)))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("1-9 note · s sequence · l loop · x stop · t time · q quit"))
	b.WriteString("\n")
	return b.String()
}

var levels = []rune("▁▂▃▄▅▆▇█")

// Sparkline draws buf as width bars, each bar the peak of its slice mapped
// from [-1, 1]. A nil buffer draws a flat line.
func Sparkline(buf []float32, width int) string {
	out := make([]rune, width)
	if len(buf) == 0 {
		for i := range out {
			out[i] = levels[len(levels)/2]
		}
		return string(out)
	}
	for i := range out {
		lo := i * len(buf) / width
		hi := (i + 1) * len(buf) / width
		if hi <= lo {
			hi = lo + 1
		}
		if hi > len(buf) {
			hi = len(buf)
		}
		var v float32
		for _, x := range buf[lo:hi] {
			if x*x > v*v {
				v = x
			}
		}
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		idx := int((v+1)/2*float32(len(levels)-1) + 0.5)
		out[i] = levels[idx]
	}
	return string(out)
}

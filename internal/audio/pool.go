package audio

import "strconv"

// Pool owns the lifecycle of every voice connected to a bus: the persistent
// primary voice and the per-session ensemble pair.
type Pool struct {
	bus      *Bus
	tapSize  int
	primary  *Synth
	tap      *Tap
	ensemble []*Synth
	created  int // ensemble pairs created so far, for naming
}

// NewPool creates a pool that connects its voices to bus. The primary voice
// is tapped with an analyser of tapSize samples.
func NewPool(bus *Bus, tapSize int) *Pool {
	return &Pool{bus: bus, tapSize: tapSize}
}

// EnsurePrimary returns the primary voice, creating it on first use.
func (p *Pool) EnsurePrimary() *Synth {
	if p.primary == nil {
		p.primary = NewSynth("primary")
		p.tap = NewTap(p.primary, p.tapSize)
		p.bus.Connect(p.tap)
	}
	return p.primary
}

// Primary returns the primary voice or nil if it was never created.
func (p *Pool) Primary() *Synth { return p.primary }

// Tap returns the analyser bound to the primary voice, or nil.
func (p *Pool) Tap() *Tap { return p.tap }

// CreateEnsemble creates a fresh frequency-modulated and amplitude-modulated
// voice pair. A pair still held from an earlier session is disposed first.
func (p *Pool) CreateEnsemble() (fm, am *Synth) {
	p.DisposeEnsemble()
	p.created++
	fm = NewFMSynth(ensembleName("fm", p.created))
	am = NewAMSynth(ensembleName("am", p.created))
	p.bus.Connect(fm)
	p.bus.Connect(am)
	p.ensemble = []*Synth{fm, am}
	return fm, am
}

// Ensemble returns the live ensemble voices.
func (p *Pool) Ensemble() []*Synth { return p.ensemble }

// DisposeEnsemble disposes both ensemble voices and forgets them. The bus
// drops them once their fade-out ends. Safe to call with no ensemble.
func (p *Pool) DisposeEnsemble() {
	for _, v := range p.ensemble {
		v.Dispose()
	}
	p.ensemble = nil
}

// Close disposes every voice, the primary included.
func (p *Pool) Close() {
	p.DisposeEnsemble()
	if p.primary != nil {
		p.primary.Dispose()
	}
}

func ensembleName(kind string, n int) string {
	return kind + "-" + strconv.Itoa(n)
}

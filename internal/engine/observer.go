package engine

import (
	"context"
	"sync"
	"time"

	"github.com/satindergrewal/tonebox/internal/state"
)

// observer polls the clock into the published transportNow.
type observer struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// StartTimeObserver starts publishing the clock time at the configured
// interval. Calling it while the observer runs is a no-op.
func (e *Engine) StartTimeObserver() error {
	if e.headless {
		return nil
	}
	e.obs.mu.Lock()
	defer e.obs.mu.Unlock()
	if e.obs.cancel != nil {
		return nil
	}
	interval := e.cfg.ObserverInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.obs.cancel = cancel
	e.obs.done = make(chan struct{})
	go e.observe(ctx, interval, e.obs.done)
	e.log.WithField("interval", interval).Debug("Time observer started")
	return nil
}

// StopTimeObserver stops the observer and waits for it to exit. Safe when
// the observer is not running. Must not be called with e.mu held.
func (e *Engine) StopTimeObserver() error {
	if e.headless {
		return nil
	}
	e.obs.mu.Lock()
	cancel, done := e.obs.cancel, e.obs.done
	e.obs.cancel, e.obs.done = nil, nil
	e.obs.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	e.log.Debug("Time observer stopped")
	return nil
}

// ObserverRunning reports whether the time observer is active.
func (e *Engine) ObserverRunning() bool {
	e.obs.mu.Lock()
	defer e.obs.mu.Unlock()
	return e.obs.cancel != nil
}

func (e *Engine) observe(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			now, bpm, pos := e.clock.Now(), e.tr.BPM(), e.tr.PositionString()
			e.mu.Unlock()
			e.store.Update(func(s *state.Snapshot) {
				s.TransportNow = now
				s.BPM = bpm
				s.Position = pos
			})
		}
	}
}

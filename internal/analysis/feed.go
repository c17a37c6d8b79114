// Package analysis mirrors the live signal into the published waveform
// while a session is playing.
package analysis

import (
	"context"
	"sync"
	"time"
)

// Source yields the most recent window of samples.
type Source interface {
	Snapshot() []float32
}

// Feed is a cancellable periodic task that copies the source window to
// publish at a fixed cadence.
type Feed struct {
	source   Source
	size     int
	interval time.Duration
	publish  func([]float32)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFeed creates a stopped feed. size is the length of the silence buffer
// published on Stop.
func NewFeed(src Source, size int, interval time.Duration, publish func([]float32)) *Feed {
	if interval <= 0 {
		interval = time.Second / 60
	}
	return &Feed{source: src, size: size, interval: interval, publish: publish}
}

// Size returns the waveform buffer length.
func (f *Feed) Size() int { return f.size }

// Start launches the sampling loop. It returns false if already running.
func (f *Feed) Start() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.run(ctx, f.done)
	return true
}

// Stop cancels the loop, waits for it to exit and publishes silence. It
// returns false if the feed was not running.
func (f *Feed) Stop() bool {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel, f.done = nil, nil
	f.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	<-done
	f.publish(make([]float32, f.size))
	return true
}

// Running reports whether the sampling loop is active.
func (f *Feed) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancel != nil
}

func (f *Feed) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.sample()
		}
	}
}

func (f *Feed) sample() {
	if buf := f.source.Snapshot(); buf != nil {
		f.publish(buf)
	}
}

// Package transport provides the audio clock and the musical transport that
// runs on top of it. Both advance only when audio is rendered, so every
// callback receives the exact clock time it was scheduled for.
package transport

import (
	"container/heap"
	"sync/atomic"
)

// Clock counts rendered sample frames. Now is safe to call from any
// goroutine; everything else must be serialized by the owner.
type Clock struct {
	sampleRate int
	frame      atomic.Int64
	timers     timerHeap
	seq        uint64
}

// Timer is a one-shot callback on the clock timeline.
type Timer struct {
	at        float64
	fn        func(t float64)
	seq       uint64
	index     int
	cancelled bool
	fired     bool
}

// Cancel prevents the timer from firing. Safe on fired or nil timers.
func (t *Timer) Cancel() {
	if t != nil {
		t.cancelled = true
	}
}

// Done reports whether the timer fired or was cancelled.
func (t *Timer) Done() bool { return t.fired || t.cancelled }

// At returns the scheduled clock time.
func (t *Timer) At() float64 { return t.at }

// NewClock creates a clock at position zero.
func NewClock(sampleRate int) *Clock {
	return &Clock{sampleRate: sampleRate}
}

// SampleRate returns frames per second.
func (c *Clock) SampleRate() int { return c.sampleRate }

// Now returns the clock time in seconds.
func (c *Clock) Now() float64 {
	return float64(c.frame.Load()) / float64(c.sampleRate)
}

// Frame returns the number of frames rendered so far.
func (c *Clock) Frame() int64 { return c.frame.Load() }

// At schedules fn to run once the clock reaches t. A time already in the
// past fires on the next Advance.
func (c *Clock) At(t float64, fn func(t float64)) *Timer {
	c.seq++
	tm := &Timer{at: t, fn: fn, seq: c.seq}
	heap.Push(&c.timers, tm)
	return tm
}

// Pending returns the number of timers not yet fired or removed.
func (c *Clock) Pending() int {
	n := 0
	for _, tm := range c.timers {
		if !tm.cancelled {
			n++
		}
	}
	return n
}

// Advance fires, in time order, every timer due before the end of the next
// frames frames, then moves the clock forward. Timers scheduled by a
// callback for a time inside the same span also fire.
func (c *Clock) Advance(frames int) {
	end := float64(c.frame.Load()+int64(frames)) / float64(c.sampleRate)
	for len(c.timers) > 0 && c.timers[0].at < end {
		tm := heap.Pop(&c.timers).(*Timer)
		if tm.cancelled {
			continue
		}
		tm.fired = true
		tm.fn(tm.at)
	}
	c.frame.Add(int64(frames))
}

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].at == h[j].at {
		return h[i].seq < h[j].seq
	}
	return h[i].at < h[j].at
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x any) {
	tm := x.(*Timer)
	tm.index = len(*h)
	*h = append(*h, tm)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	tm := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return tm
}

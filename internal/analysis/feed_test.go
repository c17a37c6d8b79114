package analysis

import (
	"sync"
	"testing"
	"time"
)

type fixedSource struct{ v float32 }

func (s fixedSource) Snapshot() []float32 { return []float32{s.v, s.v, s.v, s.v} }

type recorder struct {
	mu   sync.Mutex
	bufs [][]float32
}

func (r *recorder) publish(b []float32) {
	r.mu.Lock()
	r.bufs = append(r.bufs, b)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bufs)
}

func (r *recorder) last() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bufs[len(r.bufs)-1]
}

func TestFeedPublishesWhileRunning(t *testing.T) {
	rec := &recorder{}
	f := NewFeed(fixedSource{0.5}, 4, 5*time.Millisecond, rec.publish)
	if !f.Start() {
		t.Fatal("Start returned false on a stopped feed")
	}
	if f.Start() {
		t.Error("second Start returned true")
	}
	if !f.Running() {
		t.Error("Running = false after Start")
	}

	deadline := time.After(time.Second)
	for rec.count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("Timeout: only %d buffers published", rec.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	if rec.last()[0] != 0.5 {
		t.Errorf("published %v, want the source window", rec.last())
	}

	if !f.Stop() {
		t.Fatal("Stop returned false on a running feed")
	}
	last := rec.last()
	if len(last) != 4 {
		t.Fatalf("silence buffer length = %d, want 4", len(last))
	}
	for _, v := range last {
		if v != 0 {
			t.Fatalf("buffer after Stop = %v, want silence", last)
		}
	}

	n := rec.count()
	time.Sleep(30 * time.Millisecond)
	if rec.count() != n {
		t.Errorf("feed published %d buffers after Stop", rec.count()-n)
	}
	if f.Running() {
		t.Error("Running = true after Stop")
	}
}

func TestFeedStopWhenStopped(t *testing.T) {
	rec := &recorder{}
	f := NewFeed(fixedSource{}, 4, time.Millisecond, rec.publish)
	if f.Stop() {
		t.Error("Stop on a stopped feed returned true")
	}
	if rec.count() != 0 {
		t.Error("Stop on a stopped feed published")
	}
}

func TestFeedRestart(t *testing.T) {
	rec := &recorder{}
	f := NewFeed(fixedSource{1}, 4, time.Millisecond, rec.publish)
	f.Start()
	f.Stop()
	if !f.Start() {
		t.Fatal("Start after Stop returned false")
	}
	f.Stop()
}

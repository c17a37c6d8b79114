// Package fanout delivers values from one producer to many listeners
// without letting a slow listener block the producer.
package fanout

import (
	"context"
	"sync"
)

// Policy decides what happens when a listener's buffer is full.
type Policy int

const (
	// DropNewest discards the value being published. Suits continuous
	// streams like audio frames.
	DropNewest Policy = iota
	// DropOldest evicts the oldest buffered value so the listener always
	// ends up holding the latest one. Suits state snapshots.
	DropOldest
)

// Hub fans out values of type T to N listeners.
type Hub[T any] struct {
	mu        sync.RWMutex
	listeners map[*Listener[T]]struct{}
	buffer    int
	policy    Policy
}

// Listener receives values from the hub.
type Listener[T any] struct {
	C    chan T
	done chan struct{}
}

// Done is closed when the listener is unsubscribed.
func (l *Listener[T]) Done() <-chan struct{} { return l.done }

// NewHub creates a hub whose listeners buffer up to buffer values.
func NewHub[T any](buffer int, policy Policy) *Hub[T] {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub[T]{
		listeners: make(map[*Listener[T]]struct{}),
		buffer:    buffer,
		policy:    policy,
	}
}

// Subscribe registers a new listener.
func (h *Hub[T]) Subscribe() *Listener[T] {
	l := &Listener[T]{
		C:    make(chan T, h.buffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.listeners[l] = struct{}{}
	h.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop. Repeat calls are
// no-ops.
func (h *Hub[T]) Unsubscribe(l *Listener[T]) {
	h.mu.Lock()
	_, ok := h.listeners[l]
	delete(h.listeners, l)
	h.mu.Unlock()
	if ok {
		close(l.done)
	}
}

// ListenerCount returns the number of active listeners.
func (h *Hub[T]) ListenerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Publish hands v to every listener without blocking.
func (h *Hub[T]) Publish(v T) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for l := range h.listeners {
		select {
		case l.C <- v:
			continue
		default:
		}
		if h.policy == DropNewest {
			continue
		}
		select {
		case <-l.C:
		default:
		}
		select {
		case l.C <- v:
		default:
		}
	}
}

// Run publishes everything read from source until ctx is done or source
// is closed.
func (h *Hub[T]) Run(ctx context.Context, source <-chan T) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-source:
			if !ok {
				return
			}
			h.Publish(v)
		}
	}
}

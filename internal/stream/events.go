package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/satindergrewal/tonebox/internal/fanout"
	"github.com/satindergrewal/tonebox/internal/state"
)

// StateSource is the published state a render layer reads.
type StateSource interface {
	Snapshot() state.Snapshot
	Subscribe() *fanout.Listener[state.Snapshot]
	Unsubscribe(l *fanout.Listener[state.Snapshot])
}

// EventsHandler streams snapshots as server-sent events, at most one per
// interval. Snapshots arriving faster are coalesced to the latest.
type EventsHandler struct {
	src      StateSource
	interval time.Duration
	log      *logrus.Entry
}

// NewEventsHandler creates an SSE handler.
func NewEventsHandler(src StateSource, interval time.Duration, log *logrus.Entry) *EventsHandler {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	if log == nil {
		log = logrus.WithField("component", "events")
	}
	return &EventsHandler{src: src, interval: interval, log: log}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ctx := r.Context()
	l := h.src.Subscribe()
	defer h.src.Unsubscribe(l)
	h.log.Debug("Events client connected")
	defer h.log.Debug("Events client disconnected")

	limiter := rate.NewLimiter(rate.Every(h.interval), 1)
	snap := h.src.Snapshot()
	for {
		if err := writeEvent(w, snap); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-ctx.Done():
			return
		case <-l.Done():
			return
		case snap = <-l.C:
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		// Coalesce whatever arrived while waiting.
	drain:
		for {
			select {
			case snap = <-l.C:
			default:
				break drain
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, s state.Snapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: state\ndata: %s\n\n", b)
	return err
}

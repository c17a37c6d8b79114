// Package api exposes the engine's invocation surface over HTTP.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/satindergrewal/tonebox/internal/audio"
	"github.com/satindergrewal/tonebox/internal/engine"
	"github.com/satindergrewal/tonebox/internal/sched"
	"github.com/satindergrewal/tonebox/internal/state"
)

// Engine is the surface the API drives.
type Engine interface {
	PlaySingleNote(note string) error
	PlaySequence(notes []string, rest float64) error
	StartLoopPair() error
	StopLoopPair() error
	StopScheduled() error
	StartTimeObserver() error
	StopTimeObserver() error
	State() state.Snapshot
}

// Handler serves the /api routes.
type Handler struct {
	eng Engine
	log *logrus.Entry
}

// New creates an API handler.
func New(eng Engine, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.WithField("component", "api")
	}
	return &Handler{eng: eng, log: log}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.eng.State())
	})

	mux.HandleFunc("/api/note", h.post(func(r *http.Request) error {
		var req struct {
			Note string `json:"note"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Note == "" {
			return errBadRequest
		}
		return h.eng.PlaySingleNote(req.Note)
	}))

	mux.HandleFunc("/api/sequence", h.post(func(r *http.Request) error {
		var req struct {
			Notes []string `json:"notes"`
			Rest  float64  `json:"rest"`
		}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				return errBadRequest
			}
		}
		return h.eng.PlaySequence(req.Notes, req.Rest)
	}))

	mux.HandleFunc("/api/loop/start", h.post(func(*http.Request) error { return h.eng.StartLoopPair() }))
	mux.HandleFunc("/api/loop/stop", h.post(func(*http.Request) error { return h.eng.StopLoopPair() }))
	mux.HandleFunc("/api/stop", h.post(func(*http.Request) error { return h.eng.StopScheduled() }))
	mux.HandleFunc("/api/observer/start", h.post(func(*http.Request) error { return h.eng.StartTimeObserver() }))
	mux.HandleFunc("/api/observer/stop", h.post(func(*http.Request) error { return h.eng.StopTimeObserver() }))
}

var errBadRequest = errors.New("invalid request")

// post wraps an operation: POST only, errors mapped to status codes, the
// resulting state returned on success.
func (h *Handler) post(op func(r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		if err := op(r); err != nil {
			code := statusFor(err)
			if code >= http.StatusInternalServerError {
				h.log.WithError(err).WithField("path", r.URL.Path).Error("Operation failed")
			}
			writeJSON(w, code, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "state": h.eng.State()})
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, audio.ErrUnknownNote),
		errors.Is(err, sched.ErrEmptySequence),
		errors.Is(err, sched.ErrInvalidRest):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrOutputUnavailable),
		errors.Is(err, engine.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

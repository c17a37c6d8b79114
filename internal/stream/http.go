package stream

import (
	"context"
	"encoding/binary"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/satindergrewal/tonebox/internal/audio"
	"github.com/satindergrewal/tonebox/internal/fanout"
)

// HTTPHandler serves the rendered audio as an endless WAV stream.
type HTTPHandler struct {
	hub *fanout.Hub[[]int16]
	log *logrus.Entry
}

// NewHTTPHandler creates an HTTP stream handler.
func NewHTTPHandler(hub *fanout.Hub[[]int16], log *logrus.Entry) *HTTPHandler {
	if log == nil {
		log = logrus.WithField("component", "http-stream")
	}
	return &HTTPHandler{hub: hub, log: log}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	listener := h.hub.Subscribe()
	defer h.hub.Unsubscribe(listener)

	h.log.WithField("total", h.hub.ListenerCount()).Info("HTTP listener connected")
	defer h.log.Info("HTTP listener disconnected")

	if _, err := w.Write(WAVHeader(audio.SampleRate, audio.Channels)); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case <-listener.Done():
			return
		case frame, ok := <-listener.C:
			if !ok {
				return
			}
			if _, err := w.Write(audio.SamplesToBytes(frame)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// WAVHeader returns a 16-bit PCM RIFF header with unknown length, which
// players treat as a live stream.
func WAVHeader(sampleRate, channels int) []byte {
	const unknown = 0xFFFFFFFF
	h := make([]byte, 44)
	copy(h[0:], "RIFF")
	binary.LittleEndian.PutUint32(h[4:], unknown)
	copy(h[8:], "WAVE")
	copy(h[12:], "fmt ")
	binary.LittleEndian.PutUint32(h[16:], 16)
	binary.LittleEndian.PutUint16(h[20:], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:], uint16(channels))
	binary.LittleEndian.PutUint32(h[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:], uint32(sampleRate*channels*2))
	binary.LittleEndian.PutUint16(h[32:], uint16(channels*2))
	binary.LittleEndian.PutUint16(h[34:], 16)
	copy(h[36:], "data")
	binary.LittleEndian.PutUint32(h[40:], unknown)
	return h
}

// Package stream serves the engine to network render layers: the audio as
// a WAV stream or a WebRTC Opus track, and the published state as
// server-sent events or a WebRTC data channel.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/sirupsen/logrus"
	"gopkg.in/hraban/opus.v2"

	"github.com/satindergrewal/tonebox/internal/audio"
	"github.com/satindergrewal/tonebox/internal/fanout"
)

// StateChannel is the data channel label peers open to receive snapshots.
const StateChannel = "state"

// WebRTCHandler serves WebRTC SDP negotiation for low-latency Opus audio
// plus a state data channel.
type WebRTCHandler struct {
	hub   *fanout.Hub[[]int16]
	src   StateSource
	log   *logrus.Entry
	mu    sync.Mutex
	peers []*webrtc.PeerConnection
}

// NewWebRTCHandler creates a WebRTC stream handler.
func NewWebRTCHandler(hub *fanout.Hub[[]int16], src StateSource, log *logrus.Entry) *WebRTCHandler {
	if log == nil {
		log = logrus.WithField("component", "webrtc")
	}
	return &WebRTCHandler{hub: hub, src: src, log: log}
}

// PeerCount returns the number of active WebRTC peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		http.Error(w, "create peer connection failed", http.StatusInternalServerError)
		return
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"tonebox",
	)
	if err != nil {
		pc.Close()
		http.Error(w, "create audio track failed", http.StatusInternalServerError)
		return
	}

	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		http.Error(w, "add track failed", http.StatusInternalServerError)
		return
	}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != StateChannel {
			return
		}
		dc.OnOpen(func() { go h.streamState(dc) })
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		http.Error(w, "set remote description failed", http.StatusBadRequest)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		http.Error(w, "create answer failed", http.StatusInternalServerError)
		return
	}

	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		http.Error(w, "set local description failed", http.StatusInternalServerError)
		return
	}

	<-webrtc.GatheringCompletePromise(pc)

	h.mu.Lock()
	h.peers = append(h.peers, pc)
	h.mu.Unlock()

	h.log.WithField("total", h.PeerCount()).Info("WebRTC peer connected")

	go h.streamAudio(track)

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed ||
			s == webrtc.PeerConnectionStateDisconnected {
			if h.removePeer(pc) {
				pc.Close()
				h.log.WithField("remaining", h.PeerCount()).Info("WebRTC peer disconnected")
			}
		}
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(pc.LocalDescription())
}

func (h *WebRTCHandler) streamAudio(track *webrtc.TrackLocalStaticSample) {
	listener := h.hub.Subscribe()
	defer h.hub.Unsubscribe(listener)

	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		h.log.WithError(err).Error("Opus encoder unavailable")
		return
	}
	enc.SetBitrate(128000)

	buf := make([]byte, 4000)
	for {
		select {
		case <-listener.Done():
			return
		case frame, ok := <-listener.C:
			if !ok {
				return
			}
			n, err := enc.Encode(frame, buf)
			if err != nil {
				h.log.WithError(err).Warn("Opus encode failed")
				continue
			}
			if err := track.WriteSample(media.Sample{
				Data:     buf[:n],
				Duration: audio.FrameDuration,
			}); err != nil {
				return
			}
		}
	}
}

// streamState sends the current snapshot and every later one as JSON text
// messages until the channel closes.
func (h *WebRTCHandler) streamState(dc *webrtc.DataChannel) {
	l := h.src.Subscribe()
	defer h.src.Unsubscribe(l)

	closed := make(chan struct{})
	dc.OnClose(func() { close(closed) })

	send := func(v any) bool {
		b, err := json.Marshal(v)
		if err != nil {
			return false
		}
		return dc.SendText(string(b)) == nil
	}
	if !send(h.src.Snapshot()) {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-l.Done():
			return
		case snap := <-l.C:
			if !send(snap) {
				return
			}
		}
	}
}

func (h *WebRTCHandler) removePeer(pc *webrtc.PeerConnection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, p := range h.peers {
		if p == pc {
			h.peers = append(h.peers[:i], h.peers[i+1:]...)
			return true
		}
	}
	return false
}

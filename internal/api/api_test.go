package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/satindergrewal/tonebox/internal/audio"
	"github.com/satindergrewal/tonebox/internal/config"
	"github.com/satindergrewal/tonebox/internal/engine"
)

func newServer(t *testing.T, mutate func(*engine.Options)) (*engine.Engine, *httptest.Server) {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)
	cfg := config.Defaults()
	cfg.Output = config.OutputOffline
	opts := engine.Options{Config: cfg, Logger: logrus.NewEntry(l)}
	if mutate != nil {
		mutate(&opts)
	}
	eng := engine.New(opts)
	mux := http.NewServeMux()
	New(eng, logrus.NewEntry(l)).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		eng.Close()
	})
	return eng, srv
}

type reply struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error"`
	State json.RawMessage `json:"state"`
}

func post(t *testing.T, url, body string) (int, reply) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var r reply
	json.NewDecoder(resp.Body).Decode(&r)
	return resp.StatusCode, r
}

func TestPlayRoutes(t *testing.T) {
	eng, srv := newServer(t, nil)

	tests := []struct {
		path, body string
		want       int
		playing    bool
	}{
		{"/api/note", `{"note":"A4"}`, http.StatusOK, true},
		{"/api/sequence", `{"notes":["C4","E4"],"rest":0.25}`, http.StatusOK, true},
		{"/api/sequence", ``, http.StatusOK, true},
		{"/api/loop/start", ``, http.StatusOK, true},
		{"/api/loop/stop", ``, http.StatusOK, false},
		{"/api/stop", ``, http.StatusOK, false},
		{"/api/observer/start", ``, http.StatusOK, false},
		{"/api/observer/stop", ``, http.StatusOK, false},
	}
	for _, tt := range tests {
		code, r := post(t, srv.URL+tt.path, tt.body)
		if code != tt.want || !r.OK {
			t.Errorf("POST %s %s = %d %+v, want %d", tt.path, tt.body, code, r, tt.want)
			continue
		}
		if got := eng.State().IsPlaying; got != tt.playing {
			t.Errorf("after %s isPlaying = %v, want %v", tt.path, got, tt.playing)
		}
		if !strings.Contains(string(r.State), `"isPlaying"`) {
			t.Errorf("%s reply state = %s", tt.path, r.State)
		}
	}
}

func TestBadRequests(t *testing.T) {
	_, srv := newServer(t, nil)

	tests := []struct {
		path, body string
	}{
		{"/api/note", `{}`},
		{"/api/note", `{"note":"H9"}`},
		{"/api/note", `garbage`},
		{"/api/sequence", `{"notes":[]}`},
		{"/api/sequence", `{"notes":["C4"],"rest":-2}`},
	}
	for _, tt := range tests {
		code, r := post(t, srv.URL+tt.path, tt.body)
		if code != http.StatusBadRequest || r.OK || r.Error == "" {
			t.Errorf("POST %s %s = %d %+v, want 400", tt.path, tt.body, code, r)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	_, srv := newServer(t, nil)
	resp, err := http.Get(srv.URL + "/api/note")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/note = %d, want 405", resp.StatusCode)
	}
}

func TestOutputUnavailable(t *testing.T) {
	_, srv := newServer(t, func(o *engine.Options) {
		o.NewOutput = func() (audio.Output, error) { return nil, io.ErrClosedPipe }
	})
	code, r := post(t, srv.URL+"/api/note", `{"note":"C4"}`)
	if code != http.StatusServiceUnavailable || r.OK {
		t.Errorf("POST /api/note with no output = %d %+v, want 503", code, r)
	}
}

func TestStateRoute(t *testing.T) {
	_, srv := newServer(t, nil)
	resp, err := http.Get(srv.URL + "/api/state")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var s map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if s["isPlaying"] != false || s["currentNote"] != nil || s["phase"] != "idle" {
		t.Errorf("state = %v, want inert", s)
	}
}

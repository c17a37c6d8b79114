package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/satindergrewal/tonebox/internal/api"
	"github.com/satindergrewal/tonebox/internal/audio"
	"github.com/satindergrewal/tonebox/internal/config"
	"github.com/satindergrewal/tonebox/internal/engine"
	"github.com/satindergrewal/tonebox/internal/fanout"
	"github.com/satindergrewal/tonebox/internal/midiout"
	"github.com/satindergrewal/tonebox/internal/stream"
	"github.com/satindergrewal/tonebox/internal/web"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)
	log := logrus.WithField("component", "main")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.WithField("output", cfg.Output).Info("tonebox starting up...")

	// Stream mode: the engine renders into a frame pump that fans out to
	// HTTP and WebRTC listeners.
	frames := fanout.NewHub[[]int16](150, fanout.DropNewest)
	opts := engine.Options{Config: cfg, Logger: logrus.WithField("component", "engine")}
	if cfg.Output == config.OutputStream {
		out := audio.NewStreamOutput()
		opts.NewOutput = func() (audio.Output, error) { return out, nil }
		go frames.Run(ctx, out.Frames())
	}

	eng := engine.New(opts)
	defer eng.Close()

	if eng.Headless() {
		log.Info("Headless mode, every operation is inert")
	}
	if cfg.Output == config.OutputStream {
		if err := eng.Open(); err != nil {
			log.WithError(err).Fatal("Stream output failed")
		}
	}

	// MIDI mirror (optional)
	if cfg.MIDIPort != "" {
		defer midi.CloseDriver()
		send, err := midiout.Open(cfg.MIDIPort)
		if err != nil {
			log.WithError(err).Warn("MIDI mirror disabled")
		} else {
			go midiout.NewMirror(eng.Store(), send, logrus.WithField("component", "midiout")).Run(ctx)
			log.WithField("port", cfg.MIDIPort).Info("Mirroring notes to MIDI")
		}
	}

	mux := http.NewServeMux()

	// Web UI
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(web.IndexHTML)
	})

	api.New(eng, logrus.WithField("component", "api")).Register(mux)
	mux.Handle("/api/events", stream.NewEventsHandler(eng.Store(), 50*time.Millisecond, logrus.WithField("component", "events")))

	if cfg.Output == config.OutputStream {
		mux.Handle("/stream", stream.NewHTTPHandler(frames, logrus.WithField("component", "http-stream")))
		mux.Handle("/offer", stream.NewWebRTCHandler(frames, eng.Store(), logrus.WithField("component", "webrtc")))
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		log.Info("Shutting down...")
		server.Close()
	}()

	log.Infof("tonebox live on %s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.WithError(err).Fatal("HTTP server error")
	}
}

func setupLogging(level string) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.WithField("level", level).Warn("Unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}

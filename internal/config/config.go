package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Output modes for TONEBOX_AUDIO_OUTPUT.
const (
	OutputSpeaker = "speaker" // live device via oto
	OutputStream  = "stream"  // 20ms frame pump for HTTP/WebRTC listeners
	OutputOffline = "offline" // caller drives Render
	OutputNone    = "none"    // headless: every operation is inert
)

// Config holds all runtime configuration. Values come from an optional YAML
// file (TONEBOX_CONFIG) and are then overridden by environment variables.
type Config struct {
	// Server
	Port     int    `yaml:"port"`
	Output   string `yaml:"output"`
	LogLevel string `yaml:"log_level"`
	Strict   bool   `yaml:"strict"` // panic on programmer errors

	// Transport
	BPM float64 `yaml:"bpm"`

	// Sequences
	RestTime         float64       `yaml:"rest_time"` // seconds between notes
	Sequence         []string      `yaml:"sequence"`
	SingleNoteWindow time.Duration `yaml:"single_note_window"`
	CompletionTail   time.Duration `yaml:"completion_tail"`

	// Loop pair
	LoopNoteA       string  `yaml:"loop_note_a"`
	LoopNoteB       string  `yaml:"loop_note_b"`
	LoopRampBPM     float64 `yaml:"loop_ramp_bpm"` // 0 disables the ramp
	LoopRampSeconds float64 `yaml:"loop_ramp_seconds"`

	// Visualization
	WaveformSize     int           `yaml:"waveform_size"`
	FrameRate        int           `yaml:"frame_rate"` // waveform feed cadence, Hz
	ObserverInterval time.Duration `yaml:"observer_interval"`

	// MIDI mirror (empty = disabled)
	MIDIPort string `yaml:"midi_port"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:     8080,
		Output:   OutputSpeaker,
		LogLevel: "info",

		BPM: 120,

		RestTime:         0.5,
		Sequence:         []string{"C4", "D4", "E4", "F4", "G4", "A4", "B4"},
		SingleNoteWindow: 500 * time.Millisecond,
		CompletionTail:   time.Second,

		LoopNoteA:       "C2",
		LoopNoteB:       "C4",
		LoopRampBPM:     800,
		LoopRampSeconds: 10,

		WaveformSize:     1024,
		FrameRate:        60,
		ObserverInterval: 100 * time.Millisecond,
	}
}

// Load reads configuration from TONEBOX_CONFIG (if set) and environment
// variables with sane defaults. A broken config file is logged and skipped.
func Load() Config {
	base := Defaults()
	if path := os.Getenv("TONEBOX_CONFIG"); path != "" {
		fc, err := LoadFile(path, base)
		if err != nil {
			logrus.WithError(err).Warn("Config file ignored")
		} else {
			base = fc
		}
	}
	return fromEnv(base)
}

// LoadFile overlays the YAML file at path on base. Keys missing from the file
// keep their base value.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, errors.Wrap(err, "read config file")
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, errors.Wrapf(err, "parse config file %s", path)
	}
	return cfg, nil
}

func fromEnv(base Config) Config {
	return Config{
		Port:     envInt("TONEBOX_PORT", base.Port),
		Output:   strings.ToLower(envStr("TONEBOX_AUDIO_OUTPUT", base.Output)),
		LogLevel: envStr("TONEBOX_LOG_LEVEL", base.LogLevel),
		Strict:   envBool("TONEBOX_STRICT", base.Strict),

		BPM: envFloat("TONEBOX_BPM", base.BPM),

		RestTime:         envFloat("TONEBOX_REST_TIME", base.RestTime),
		Sequence:         envList("TONEBOX_SEQUENCE", base.Sequence),
		SingleNoteWindow: envDuration("TONEBOX_SINGLE_NOTE_WINDOW", base.SingleNoteWindow),
		CompletionTail:   envDuration("TONEBOX_COMPLETION_TAIL", base.CompletionTail),

		LoopNoteA:       envStr("TONEBOX_LOOP_NOTE_A", base.LoopNoteA),
		LoopNoteB:       envStr("TONEBOX_LOOP_NOTE_B", base.LoopNoteB),
		LoopRampBPM:     envFloat("TONEBOX_LOOP_RAMP_BPM", base.LoopRampBPM),
		LoopRampSeconds: envFloat("TONEBOX_LOOP_RAMP_SECONDS", base.LoopRampSeconds),

		WaveformSize:     envInt("TONEBOX_WAVEFORM_SIZE", base.WaveformSize),
		FrameRate:        envInt("TONEBOX_FRAME_RATE", base.FrameRate),
		ObserverInterval: envDuration("TONEBOX_OBSERVER_INTERVAL", base.ObserverInterval),

		MIDIPort: envStr("TONEBOX_MIDI_PORT", base.MIDIPort),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envDuration accepts Go durations ("250ms") or bare seconds ("0.25").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

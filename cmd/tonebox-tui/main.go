package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/satindergrewal/tonebox/internal/config"
	"github.com/satindergrewal/tonebox/internal/engine"
	"github.com/satindergrewal/tonebox/internal/tui"
)

func main() {
	cfg := config.Load()

	// The terminal belongs to the UI, so logs go to a file.
	f, err := os.OpenFile("tonebox-tui.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()
	logrus.SetOutput(f)
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(lvl)
	}

	eng := engine.New(engine.Options{Config: cfg, Logger: logrus.WithField("component", "engine")})
	defer eng.Close()

	m := tui.NewModel(eng, eng.Store(), cfg.Sequence)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tonebox-tui: %v\n", err)
		os.Exit(1)
	}
}

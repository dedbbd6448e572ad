package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"beacon/cmd/beacon/tui"
	"beacon/internal/control"
)

// runInteractive starts the event loop, the controller and the TUI.
func runInteractive() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a := newApp(cfg)

	loop := control.NewLoop()
	go loop.Run()

	ctrl := control.New(loop, a.manager, a.register, a.metric, control.Config{
		MatchLimit: cfg.Ranking.MatchLimit,
		SaveEvery:  cfg.GetSaveInterval(),
	})

	program := tea.NewProgram(tui.New(ctrl), tea.WithAltScreen())
	_, runErr := program.Run()

	// Shutdown persists learned data and provider caches, then stops
	// the loop.
	ctrl.Shutdown()
	if runErr != nil {
		return fmt.Errorf("interface error: %w", runErr)
	}
	return nil
}

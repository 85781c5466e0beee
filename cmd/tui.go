package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/katelyatv/internal/shared"
	"github.com/desertthunder/katelyatv/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive account browser.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/katelyatv-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	store, release, err := r.openStorage(ctx, cmd.String("backend"))
	if err != nil {
		return err
	}
	defer release()

	model := ui.NewModel(ctx, store)
	p := tea.NewProgram(model, tea.WithContext(ctx), tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

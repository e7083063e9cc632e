package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea/v2"
)

// Run starts the monitor against the gateway behind client and blocks until
// the user quits or ctx ends.
func Run(ctx context.Context, client *Client) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(New(ctx, client), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

package tui

import (
	"fmt"
	"image/color"

	"github.com/charmbracelet/lipgloss/v2"
)

// Palette, slate background with fire accents.
var (
	colorPrimary = parseHex("#C0392B")
	colorAccent  = parseHex("#F39C12")
	colorFgBase  = parseHex("#f5f6fa")
	colorMuted   = parseHex("#a0a0a0")
	colorSubtle  = parseHex("#6F6F70")
	colorBorder  = parseHex("#5D6D7E")
	colorSuccess = parseHex("#27AE60")
	colorError   = parseHex("#E74C3C")
	colorInfo    = parseHex("#3498DB")
)

type styles struct {
	title   lipgloss.Style
	panel   lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	muted   lipgloss.Style
	heavy   lipgloss.Style
	light   lipgloss.Style
	success lipgloss.Style
	err     lipgloss.Style
	help    lipgloss.Style
}

func newStyles() styles {
	return styles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1),
		label:   lipgloss.NewStyle().Foreground(colorMuted).Width(10),
		value:   lipgloss.NewStyle().Foreground(colorFgBase).Bold(true),
		muted:   lipgloss.NewStyle().Foreground(colorSubtle),
		heavy:   lipgloss.NewStyle().Foreground(colorPrimary).Bold(true),
		light:   lipgloss.NewStyle().Foreground(colorInfo).Bold(true),
		success: lipgloss.NewStyle().Foreground(colorSuccess),
		err:     lipgloss.NewStyle().Foreground(colorError),
		help:    lipgloss.NewStyle().Foreground(colorSubtle).Padding(0, 1),
	}
}

// parseHex converts hex string to color
func parseHex(hex string) color.Color {
	var r, g, b uint8
	_, _ = fmt.Sscanf(hex, "#%02x%02x%02x", &r, &g, &b)
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

package ui

import (
	"github.com/charmbracelet/lipgloss"
)

var styles = NewPalette(
	lipgloss.AdaptiveColor{Light: "#138A3E", Dark: "#1DB954"},
	lipgloss.AdaptiveColor{Light: "#04875A", Dark: "#04B575"},
	lipgloss.AdaptiveColor{Light: "#C0392B", Dark: "#FF5F56"},
	lipgloss.AdaptiveColor{Light: "#B36B00", Dark: "#FFA500"},
	lipgloss.AdaptiveColor{Light: "#8A8A8A", Dark: "#626262"},
)

// Palette holds the monitor's named [lipgloss.Style] values.
type Palette struct {
	title lipgloss.Style
	track lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

// NewPalette builds a palette from brand, success, error, warning and muted colors.
func NewPalette(brand, success, failure, warning, muted lipgloss.TerminalColor) *Palette {
	return &Palette{
		title: bold(brand).MarginBottom(1),
		track: bold(brand),
		ok:    bold(success),
		err:   bold(failure),
		warn:  lipgloss.NewStyle().Foreground(warning),
		help:  lipgloss.NewStyle().Foreground(muted).Italic(true),
	}
}

func bold(fg lipgloss.TerminalColor) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(fg).Bold(true)
}

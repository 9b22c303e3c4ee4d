// Package terminal renders recipes for command-line sessions and runs the
// interactive line shell.
package terminal

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Adaptive palette, readable on light and dark backgrounds.
var (
	colorSuccess = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	colorError   = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	colorAccent  = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

const (
	iconSuccess = "✓"
	iconError   = "✗"
)

// Styles are the semantic styles used by the terminal view.
type Styles struct {
	Card    lipgloss.Style
	Title   lipgloss.Style
	Label   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Header  lipgloss.Style
}

// NewStyles builds styles for w. Colors are dropped when w is not a
// color-capable terminal.
func NewStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	return Styles{
		Card: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1),
		Title:   r.NewStyle().Bold(true).Foreground(colorAccent),
		Label:   r.NewStyle().Foreground(colorMuted),
		Muted:   r.NewStyle().Foreground(colorMuted).Italic(true),
		Success: r.NewStyle().Foreground(colorSuccess),
		Error:   r.NewStyle().Foreground(colorError).Bold(true),
		Header:  r.NewStyle().Bold(true).Foreground(colorAccent),
	}
}

// Package ux renders build and verification summaries for the terminal.
package ux

import "github.com/charmbracelet/lipgloss"

// Palette
var (
	Primary     = lipgloss.Color("#8BC34A")
	Destructive = lipgloss.Color("#e53935")
	Warning     = lipgloss.Color("#FFC107")
	Info        = lipgloss.Color("#2196F3")
	Muted       = lipgloss.Color("#6b7a90")
)

// Styles groups the styles used by the renderers.
type Styles struct {
	Title   lipgloss.Style
	Body    lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
}

// DefaultStyles returns the standard styles.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(Info),
		Body:    lipgloss.NewStyle(),
		Bold:    lipgloss.NewStyle().Bold(true),
		Muted:   lipgloss.NewStyle().Foreground(Muted),
		Success: lipgloss.NewStyle().Bold(true).Foreground(Primary),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(Destructive),
		Warning: lipgloss.NewStyle().Foreground(Warning),
		Info:    lipgloss.NewStyle().Foreground(Info),
	}
}

// PlainStyles renders without any escape sequences.
func PlainStyles() Styles {
	s := lipgloss.NewStyle()
	return Styles{Title: s, Body: s, Bold: s, Muted: s, Success: s, Error: s, Warning: s, Info: s}
}

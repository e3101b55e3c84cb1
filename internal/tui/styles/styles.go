// Package styles defines shared lipgloss styles for terminal output.
package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/pablasso/phasegate/internal/status"
)

var (
	primaryColor   = lipgloss.Color("#5FAFAF") // Teal accent
	secondaryColor = lipgloss.Color("#666666")
	successColor   = lipgloss.Color("#87AF87")
	errorColor     = lipgloss.Color("#AF5F5F")
	warningColor   = lipgloss.Color("#D7AF5F")

	// TitleStyle for headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// PhaseStyle for phase headings in status reports
	PhaseStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// SubtleStyle for hints/help text
	SubtleStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	// StatusBarStyle for bottom status bar
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	// BoxStyle for panel borders
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)
)

// Indicator returns the glyph used for a phase or task status.
func Indicator(s status.Status) string {
	switch s {
	case status.Completed:
		return "✓"
	case status.Failed:
		return "✗"
	case status.Blocked:
		return "⊘"
	case status.InProgress:
		return "▶"
	default:
		return "○"
	}
}

// ForStatus returns the style a status is rendered with.
func ForStatus(s status.Status) lipgloss.Style {
	switch s {
	case status.Completed:
		return SuccessStyle
	case status.Failed:
		return ErrorStyle
	case status.Blocked:
		return WarningStyle
	case status.InProgress:
		return PhaseStyle
	default:
		return SubtleStyle
	}
}

// Render formats a status with its indicator and colour.
func Render(s status.Status) string {
	return ForStatus(s).Render(Indicator(s) + " " + string(s))
}

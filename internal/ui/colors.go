// Package ui provides terminal UI components and styling
package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/kokjohn0824/detach/internal/task"
)

// Color palette
var (
	ColorPrimary   = lipgloss.Color("39")  // Blue
	ColorSuccess   = lipgloss.Color("82")  // Green
	ColorWarning   = lipgloss.Color("214") // Orange
	ColorError     = lipgloss.Color("196") // Red
	ColorInfo      = lipgloss.Color("87")  // Cyan
	ColorMuted     = lipgloss.Color("245") // Gray
	ColorHighlight = lipgloss.Color("212") // Pink
)

// Text styles
var (
	StyleBold = lipgloss.NewStyle().Bold(true)

	StylePrimary   = lipgloss.NewStyle().Foreground(ColorPrimary)
	StyleSuccess   = lipgloss.NewStyle().Foreground(ColorSuccess)
	StyleWarning   = lipgloss.NewStyle().Foreground(ColorWarning)
	StyleError     = lipgloss.NewStyle().Foreground(ColorError)
	StyleInfo      = lipgloss.NewStyle().Foreground(ColorInfo)
	StyleMuted     = lipgloss.NewStyle().Foreground(ColorMuted)
	StyleHighlight = lipgloss.NewStyle().Foreground(ColorHighlight)

	StyleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	StyleSubtitle = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Italic(true)
)

// Box styles
var (
	BoxStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorMuted).
		Padding(0, 1)
)

// StateStyle returns the style a task state is rendered with
func StateStyle(state task.State) lipgloss.Style {
	switch state {
	case task.StateStarting:
		return StyleWarning
	case task.StateRunning:
		return StyleInfo
	case task.StateExited:
		return StyleSuccess
	case task.StateSignaled:
		return StyleError
	default:
		return StyleMuted
	}
}

// StatusIcon returns the indicator of a status. A non-zero exit counts as
// a failure.
func StatusIcon(s task.Status) string {
	switch s.State {
	case task.StateStarting:
		return StyleWarning.Render("○")
	case task.StateRunning:
		return StyleInfo.Render("◐")
	case task.StateExited:
		if s.ExitCode == 0 {
			return StyleSuccess.Render("●")
		}
		return StyleError.Render("✗")
	case task.StateSignaled:
		return StyleError.Render("✗")
	default:
		return StyleMuted.Render("?")
	}
}

// RenderStatus renders a status with its icon in the state's color
func RenderStatus(s task.Status) string {
	style := StateStyle(s.State)
	if s.State == task.StateExited && s.ExitCode != 0 {
		style = StyleError
	}
	return StatusIcon(s) + " " + style.Render(s.String())
}

package cli

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent = lipgloss.Color("#818CF8")
	colorMuted  = lipgloss.Color("#718096")
	colorError  = lipgloss.Color("#E74C3C")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError)
	segmentStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(0, 1).
			Width(80)
	choiceStyle = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
)

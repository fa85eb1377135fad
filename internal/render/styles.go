package render

import "github.com/charmbracelet/lipgloss"

const (
	minColumnWidth = 22
	maxColumnWidth = 40
)

var (
	// TitleStyle is used for the board title line.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")). // Purple
			MarginBottom(1)

	// ErrorStyle is used for error messages.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)

	// StatusStyle is used for the stream status line.
	StatusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")) // Dark gray

	columnHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205"))

	cardStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	highlightCardStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("205")).
				Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("99"))

	liveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")) // Green
)

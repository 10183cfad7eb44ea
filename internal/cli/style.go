package cli

import "github.com/charmbracelet/lipgloss"

// Colors
var (
	accent = lipgloss.Color("#DA702C")
	muted  = lipgloss.Color("245")
	green  = lipgloss.Color("#2E8B57")
	red    = lipgloss.Color("196")
	white  = lipgloss.Color("#FFFFFF")
)

// Bullets
const (
	bulletStarted = "○"
	bulletDone    = "●"
	bulletFailed  = "x"
)

var (
	startedStyle = lipgloss.NewStyle().Foreground(muted)
	doneStyle    = lipgloss.NewStyle().Foreground(green)
	errorStyle   = lipgloss.NewStyle().Foreground(red)
	metaStyle    = lipgloss.NewStyle().Foreground(muted)
	stepStyle    = lipgloss.NewStyle().Foreground(white).Bold(true)

	runDoneStyle   = lipgloss.NewStyle().Foreground(green).Bold(true)
	runFailedStyle = lipgloss.NewStyle().Foreground(red).Bold(true)

	headerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1).
			Foreground(white)

	labelStyle = lipgloss.NewStyle().
			Foreground(accent).
			Bold(true)
)

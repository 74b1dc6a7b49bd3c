package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorSuccess   = lipgloss.Color("78")  // Green
)

// Title style for the dashboard header.
var Title = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight).
	Padding(0, 1)

// HeaderRow style for the table column names.
var HeaderRow = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorSecondary).
	Padding(0, 1)

// SelectedRow style for the highlighted event.
var SelectedRow = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// NormalRow style for other events.
var NormalRow = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Padding(0, 1)

// FailedRow style for events whose evaluation failed.
var FailedRow = lipgloss.NewStyle().
	Foreground(lipgloss.Color("196")).
	Padding(0, 1)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// ErrorStyle for displaying errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("196")).
	Bold(true).
	Padding(0, 1)

// HelpStyle for help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(1, 2)

// DoneStyle marks a finished run.
var DoneStyle = lipgloss.NewStyle().
	Foreground(colorSuccess).
	Bold(true)

var bandColors = map[string]lipgloss.Color{
	"LOW":      lipgloss.Color("78"),
	"MEDIUM":   lipgloss.Color("220"),
	"HIGH":     lipgloss.Color("208"),
	"CRITICAL": lipgloss.Color("196"),
}

// BandStyle colors a band label; unknown labels render muted.
func BandStyle(label string) lipgloss.Style {
	c, ok := bandColors[label]
	if !ok {
		c = colorMuted
	}
	return lipgloss.NewStyle().Foreground(c).Bold(true)
}

package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	primaryColor   = lipgloss.Color("#0085FF") // Bluesky blue
	secondaryColor = lipgloss.Color("#7C3AED")
	okColor        = lipgloss.Color("#10B981")
	warnColor      = lipgloss.Color("#F59E0B")
	dimColor       = lipgloss.Color("#6B7280")
	errorColor     = lipgloss.Color("#EF4444")
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(primaryColor).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			Width(16)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F3F4F6")).
			Bold(true)

	sectionStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true).
			MarginTop(1)

	runningStyle = lipgloss.NewStyle().
			Foreground(okColor).
			Bold(true)

	degradedStyle = lipgloss.NewStyle().
			Foreground(warnColor).
			Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dimColor).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)
)

// formatStatus colors the overall status word
func formatStatus(status string) string {
	if status == "running" {
		return runningStyle.Render("● " + status)
	}
	return degradedStyle.Render("▲ " + status)
}

// formatRow renders one label/value line
func formatRow(label string, value any) string {
	return labelStyle.Render(label) + valueStyle.Render(fmt.Sprint(value))
}

// formatError formats an error message
func formatError(text string) string {
	return errorStyle.Render("✗ " + text)
}

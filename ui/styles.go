package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"crewtui/model"
)

var (
	dimColor     = lipgloss.Color("7")
	accentColor  = lipgloss.Color("12")
	successColor = lipgloss.Color("10")
	warningColor = lipgloss.Color("11")
	dangerColor  = lipgloss.Color("9")
	purpleColor  = lipgloss.Color("13")
	cyanColor    = lipgloss.Color("14")

	UserStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	TitleStyle = lipgloss.NewStyle().
			Bold(true)

	StatusStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	AlertStyle = lipgloss.NewStyle().
			Foreground(dangerColor).
			Bold(true)

	ConfirmStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true)

	// One color per crew role so the transcript reads at a glance.
	roleStyles = map[model.RoleID]lipgloss.Style{
		model.RoleCoordinator: lipgloss.NewStyle().Foreground(accentColor),
		model.RoleCoder:       lipgloss.NewStyle().Foreground(cyanColor),
		model.RoleExecutor:    lipgloss.NewStyle().Foreground(warningColor),
		model.RoleReviewer:    lipgloss.NewStyle().Foreground(purpleColor),
		model.RoleDocumenter:  lipgloss.NewStyle().Foreground(dimColor),
	}
)

func roleStyle(id model.RoleID) lipgloss.Style {
	if s, ok := roleStyles[id]; ok {
		return s
	}
	return roleStyles[model.RoleCoordinator]
}

// FormatFooter formats a status bar: keys in default color, descriptions in
// accent bold. Usage: FormatFooter("Enter", "Send", "Alt+Q", "Quit").
func FormatFooter(parts ...string) string {
	descStyle := lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	var result []string
	for i := 0; i+1 < len(parts); i += 2 {
		result = append(result, parts[i]+" "+descStyle.Render(parts[i+1]))
	}
	return strings.Join(result, "  ")
}

package tui

import "github.com/charmbracelet/lipgloss"

type theme struct {
	Header    lipgloss.Style
	Frame     lipgloss.Style
	Panel     lipgloss.Style
	Muted     lipgloss.Style
	Accent    lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	Success   lipgloss.Style
	Alert     lipgloss.Style
	Danger    lipgloss.Style
	Input     lipgloss.Style
	Cell      lipgloss.Style
	CellFocus lipgloss.Style
	CellError lipgloss.Style
}

func defaultTheme() theme {
	accent := lipgloss.Color("#5FD7AF")
	secondary := lipgloss.Color("#7D7D7D")
	success := lipgloss.Color("#00D75F")
	alert := lipgloss.Color("#FFBF00")
	danger := lipgloss.Color("#FF5F87")

	cell := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(secondary).
		Padding(0, 1)

	return theme{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent),
		Frame: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(secondary).
			Padding(0, 1),
		Muted: lipgloss.NewStyle().
			Foreground(secondary),
		Accent: lipgloss.NewStyle().
			Foreground(accent),
		User: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent),
		Assistant: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#AF87FF")),
		Success: lipgloss.NewStyle().
			Foreground(success),
		Alert: lipgloss.NewStyle().
			Foreground(alert),
		Danger: lipgloss.NewStyle().
			Foreground(danger),
		Input: lipgloss.NewStyle().
			Foreground(accent),
		Cell:      cell,
		CellFocus: cell.BorderForeground(accent),
		CellError: cell.BorderForeground(danger),
	}
}

package theme

import "github.com/charmbracelet/lipgloss"

var (
	Base     = lipgloss.Color("#1e1e2e")
	Mantle   = lipgloss.Color("#181825")
	Surface1 = lipgloss.Color("#45475a")
	Text     = lipgloss.Color("#cdd6f4")
	Subtext0 = lipgloss.Color("#a6adc8")
	Lavender = lipgloss.Color("#b4befe")
	Sapphire = lipgloss.Color("#74c7ec")
	Green    = lipgloss.Color("#a6e3a1")
	Yellow   = lipgloss.Color("#f9e2af")
	Peach    = lipgloss.Color("#fab387")
	Red      = lipgloss.Color("#f38ba8")

	App = lipgloss.NewStyle().
		Background(Base).
		Foreground(Text).
		Padding(1, 2)

	Pane = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Surface1).
		Background(Mantle).
		Foreground(Text).
		Padding(0, 1)

	Title  = lipgloss.NewStyle().Foreground(Sapphire).Bold(true)
	Muted  = lipgloss.NewStyle().Foreground(Subtext0)
	Hot    = lipgloss.NewStyle().Foreground(Peach).Bold(true)
	Metric = lipgloss.NewStyle().Foreground(Lavender).Bold(true)
	Error  = lipgloss.NewStyle().Foreground(Red)
)

// Status colors the session status badge.
func Status(status string) lipgloss.Style {
	badge := lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(Base)
	switch status {
	case "active":
		return badge.Background(Green)
	case "paused":
		return badge.Background(Yellow)
	case "starting", "finishing":
		return badge.Background(Sapphire)
	case "finished":
		return badge.Background(Lavender)
	case "cancelled":
		return badge.Background(Red)
	default:
		return badge.Background(Surface1).Foreground(Text)
	}
}

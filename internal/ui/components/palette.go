package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"gymtrack/internal/ui/theme"
)

// PaletteSubmitMsg is emitted when the user confirms a command.
type PaletteSubmitMsg struct{ Input string }

// PaletteCancelMsg is emitted when the user presses esc.
type PaletteCancelMsg struct{}

// Command is one entry offered by the palette.
type Command struct {
	Name  string
	Usage string
	Help  string
}

var (
	paletteStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.Peach).
			Background(theme.Mantle).
			Foreground(theme.Text).
			Padding(0, 1)

	usageStyle = lipgloss.NewStyle().Foreground(theme.Subtext0)
	matchStyle = lipgloss.NewStyle().Foreground(theme.Green).Bold(true)
)

// Palette is a session command line. Tab completes the command name.
type Palette struct {
	input    textinput.Model
	commands []Command
	visible  bool
	width    int
}

func NewPalette() Palette {
	ti := textinput.New()
	ti.Placeholder = "pause, finish laps=12, ..."
	ti.CharLimit = 128
	return Palette{input: ti}
}

func (p Palette) Visible() bool { return p.visible }

// Open shows the palette offering cmds and returns the focus command.
func (p *Palette) Open(cmds []Command) tea.Cmd {
	p.visible = true
	p.commands = cmds
	p.input.SetValue("")
	return p.input.Focus()
}

func (p *Palette) SetWidth(w int) { p.width = w }

// Matches lists the offered commands whose name starts with the first word typed so far.
func (p Palette) Matches() []Command {
	word, _, _ := strings.Cut(strings.TrimLeft(strings.ToLower(p.input.Value()), " "), " ")
	var out []Command
	for _, c := range p.commands {
		if strings.HasPrefix(c.Name, word) {
			out = append(out, c)
		}
	}
	return out
}

func (p Palette) Update(msg tea.Msg) (Palette, tea.Cmd) {
	if !p.visible {
		return p, nil
	}
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "esc":
			p.close()
			return p, func() tea.Msg { return PaletteCancelMsg{} }
		case "enter":
			val := strings.TrimSpace(p.input.Value())
			p.close()
			return p, func() tea.Msg { return PaletteSubmitMsg{Input: val} }
		case "tab":
			if m := p.Matches(); len(m) == 1 && !strings.Contains(p.input.Value(), " ") {
				p.input.SetValue(m[0].Name + " ")
				p.input.CursorEnd()
			}
			return p, nil
		}
	}
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return p, cmd
}

func (p *Palette) close() {
	p.visible = false
	p.input.Blur()
}

func (p Palette) View() string {
	if !p.visible {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(theme.Title.Render("Command") + "\n")
	sb.WriteString(": " + p.input.View() + "\n")
	matches := p.Matches()
	if len(matches) > 0 {
		sb.WriteString("\n")
	}
	for _, c := range matches {
		line := "  " + matchStyle.Render(c.Name)
		if c.Usage != "" {
			line += " " + usageStyle.Render(c.Usage)
		}
		if c.Help != "" {
			line += usageStyle.Render("  " + c.Help)
		}
		sb.WriteString(line + "\n")
	}

	w := p.width
	if w < 20 {
		w = 64
	}
	return paletteStyle.Width(w - 2).Render(sb.String())
}

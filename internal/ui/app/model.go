package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"gymtrack/internal/modules/activity/dto"
	"gymtrack/internal/ui/components"
	"gymtrack/internal/ui/theme"
)

// sessionPort is the slice of the activity usecase the live screen drives.
type sessionPort interface {
	Pause(ctx context.Context) (dto.SnapshotOutput, error)
	Resume(ctx context.Context) (dto.SnapshotOutput, error)
	Finish(ctx context.Context, input dto.FinishInput) (dto.FinishOutput, error)
	Cancel(ctx context.Context) (dto.CancelOutput, error)
	Snapshot(ctx context.Context) dto.SnapshotOutput
	FlushNow(ctx context.Context) (dto.FlushOutput, error)
}

const refreshInterval = time.Second

// ─── async messages ───────────────────────────────────────────────────────────

type tickMsg time.Time

type transitionMsg struct {
	snap dto.SnapshotOutput
	verb string
	err  error
}

type finishedMsg struct {
	out dto.FinishOutput
	err error
}

type cancelledMsg struct {
	out dto.CancelOutput
	err error
}

type flushedMsg struct {
	out dto.FlushOutput
	err error
}

// ─── key bindings ─────────────────────────────────────────────────────────────

type keyMap struct {
	Pause   key.Binding
	Finish  key.Binding
	Cancel  key.Binding
	Sync    key.Binding
	Help    key.Binding
	Palette key.Binding
	Quit    key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Pause:   key.NewBinding(key.WithKeys("p", " "), key.WithHelp("p", "pause/resume")),
		Finish:  key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "finish")),
		Cancel:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "cancel")),
		Sync:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sync now")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Palette: key.NewBinding(key.WithKeys(":"), key.WithHelp(":", "command")),
		Quit:    key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "detach")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Finish, k.Cancel, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Pause, k.Finish, k.Cancel},
		{k.Sync, k.Palette},
		{k.Help, k.Quit},
	}
}

// ─── model ───────────────────────────────────────────────────────────────────

// Model is the live session screen. It polls a snapshot every second and turns
// key presses into usecase calls; it never holds session state of its own.
type Model struct {
	session sessionPort

	keys     keyMap
	help     help.Model
	showHelp bool
	palette  components.Palette

	snap     dto.SnapshotOutput
	pending  bool
	status   string
	finished *dto.FinishOutput
	canceled *dto.CancelOutput
	width    int
	height   int
}

func NewModel(session sessionPort) Model {
	return Model{
		session: session,
		keys:    defaultKeys(),
		help:    help.New(),
		palette: components.NewPalette(),
		snap:    session.Snapshot(context.Background()),
		status:  "tracking",
	}
}

// Finished returns the finish summary when the session was finished from this screen.
func (m Model) Finished() (dto.FinishOutput, bool) {
	if m.finished == nil {
		return dto.FinishOutput{}, false
	}
	return *m.finished, true
}

// Cancelled returns the cancel result when the session was cancelled from this screen.
func (m Model) Cancelled() (dto.CancelOutput, bool) {
	if m.canceled == nil {
		return dto.CancelOutput{}, false
	}
	return *m.canceled, true
}

func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// ─── update ───────────────────────────────────────────────────────────────────

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// The palette intercepts all input while open.
	if m.palette.Visible() {
		var cmd tea.Cmd
		m.palette, cmd = m.palette.Update(msg)
		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.palette.SetWidth(min(m.width-4, 80))
		m.help.Width = m.width

	case tickMsg:
		m.snap = m.session.Snapshot(context.Background())
		return m, tickCmd()

	case transitionMsg:
		m.pending = false
		if msg.err != nil {
			m.status = msg.verb + " failed: " + msg.err.Error()
			return m, nil
		}
		m.snap = msg.snap
		m.status = msg.verb + "d"

	case flushedMsg:
		m.pending = false
		if msg.err != nil {
			m.status = "sync failed: " + msg.err.Error()
			return m, nil
		}
		m.status = fmt.Sprintf("synced %d points, %d pending", msg.out.Sent, msg.out.Pending)

	case finishedMsg:
		m.pending = false
		if msg.err != nil {
			m.status = "finish failed: " + msg.err.Error()
			return m, nil
		}
		m.finished = &msg.out
		return m, tea.Quit

	case cancelledMsg:
		m.pending = false
		if msg.err != nil {
			m.status = "cancel failed: " + msg.err.Error()
			return m, nil
		}
		m.canceled = &msg.out
		return m, tea.Quit

	case components.PaletteSubmitMsg:
		return m.executePalette(msg.Input)

	case components.PaletteCancelMsg:
		m.status = "tracking"

	case tea.KeyMsg:
		if m.showHelp {
			if msg.String() == "?" || msg.String() == "esc" {
				m.showHelp = false
			}
			return m, nil
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp = true
		case key.Matches(msg, m.keys.Palette):
			return m, m.palette.Open(paletteCommands(m.snap))
		case key.Matches(msg, m.keys.Pause):
			return m.togglePause()
		case key.Matches(msg, m.keys.Finish):
			return m.run("finishing", m.finishCmd(dto.FinishInput{}))
		case key.Matches(msg, m.keys.Cancel):
			return m.run("cancelling", m.cancelCmd())
		case key.Matches(msg, m.keys.Sync):
			return m.run("syncing", m.flushCmd())
		}
	}
	return m, nil
}

func (m Model) togglePause() (tea.Model, tea.Cmd) {
	switch m.snap.Status {
	case "active":
		return m.run("pausing", m.transitionCmd("pause", m.session.Pause))
	case "paused":
		return m.run("resuming", m.transitionCmd("resume", m.session.Resume))
	default:
		m.status = "nothing to pause while " + m.snap.Status
		return m, nil
	}
}

// run starts cmd unless another action from this screen is still in flight.
func (m Model) run(label string, cmd tea.Cmd) (tea.Model, tea.Cmd) {
	if m.pending {
		m.status = "busy, wait for the previous action"
		return m, nil
	}
	m.pending = true
	m.status = label + "…"
	return m, cmd
}

// ─── view ────────────────────────────────────────────────────────────────────

func (m Model) View() string {
	header := m.renderHeader()
	footer := m.renderFooter()

	var content string
	switch {
	case m.showHelp:
		content = m.help.View(m.keys)
	case m.palette.Visible():
		content = m.palette.View()
	default:
		content = m.renderStats()
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, content, footer)
}

func (m Model) renderHeader() string {
	s := m.snap
	label := strings.ReplaceAll(s.ActivityType, "_", " ")
	if label == "" {
		label = "no session"
	}
	left := theme.Title.Render("gymtrack") + "  " + label
	if s.Mode != "" {
		left += theme.Muted.Render(" · " + s.Mode)
	}
	return left + "  " + theme.Status(s.Status).Render(strings.ToUpper(orDash(s.Status))) + "\n"
}

func (m Model) renderStats() string {
	s := m.snap
	cell := func(label, value string) string {
		return lipgloss.NewStyle().Width(18).Render(theme.Muted.Render(label) + "\n" + theme.Metric.Render(value))
	}
	rows := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top,
			cell("time", FormatElapsed(s.ElapsedSeconds)),
			cell("distance", fmt.Sprintf("%.2f km", s.DistanceMeters/1000)),
			cell("pace", s.Pace+" /km"),
		),
		"",
		lipgloss.JoinHorizontal(lipgloss.Top,
			cell("avg speed", fmt.Sprintf("%.1f km/h", s.AvgSpeedKmh)),
			cell("max speed", fmt.Sprintf("%.1f km/h", s.MaxSpeedKmh)),
			cell("calories", fmt.Sprintf("%.0f kcal", s.CaloriesBurned)),
		),
	)

	sync := fmt.Sprintf("points %d  pending %d  dropped %d", s.PointCount, s.PendingPoints, s.DroppedSamples)
	if !s.LastFlushAt.IsZero() {
		sync += "  last sync " + s.LastFlushAt.Local().Format("15:04:05")
	}
	lines := []string{rows, "", theme.Muted.Render(sync)}
	if s.LastFlushError != "" {
		lines = append(lines, theme.Error.Render(fmt.Sprintf("sync failing (%d): %s", s.FlushFailures, s.LastFlushError)))
	}
	return theme.Pane.Render(strings.Join(lines, "\n"))
}

func (m Model) renderFooter() string {
	left := m.status
	right := m.help.ShortHelpView(m.keys.ShortHelp())
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return "\n" + left + strings.Repeat(" ", gap) + right
}

// ─── palette execution ────────────────────────────────────────────────────────

func paletteCommands(snap dto.SnapshotOutput) []components.Command {
	var cmds []components.Command
	switch snap.Status {
	case "active":
		cmds = append(cmds, components.Command{Name: "pause", Help: "stop the clock"})
	case "paused":
		cmds = append(cmds, components.Command{Name: "resume", Help: "restart the clock"})
	}
	finish := "[laps=<n>] [resistance=<n>] [incline=<pct>] [floors=<n>]"
	if snap.Mode == "manual" {
		finish = "[distance=<m>] " + finish
	}
	return append(cmds,
		components.Command{Name: "sync", Help: "send pending points now"},
		components.Command{Name: "finish", Usage: finish, Help: "save the session"},
		components.Command{Name: "cancel", Help: "discard the session"},
	)
}

func (m Model) executePalette(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return m, nil
	}
	switch parts[0] {
	case "pause", "resume":
		if (parts[0] == "pause") != (m.snap.Status == "active") {
			m.status = "cannot " + parts[0] + " while " + m.snap.Status
			return m, nil
		}
		return m.togglePause()
	case "sync":
		return m.run("syncing", m.flushCmd())
	case "cancel":
		return m.run("cancelling", m.cancelCmd())
	case "finish":
		extras, err := ParseExtras(parts[1:])
		if err != nil {
			m.status = err.Error()
			return m, nil
		}
		return m.run("finishing", m.finishCmd(extras))
	default:
		m.status = "unknown command: " + parts[0]
		return m, nil
	}
}

// ParseExtras reads key=value finish measurements such as "laps=12 incline=2.5".
func ParseExtras(args []string) (dto.FinishInput, error) {
	var in dto.FinishInput
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok {
			return dto.FinishInput{}, fmt.Errorf("expected key=value, got %q", arg)
		}
		var err error
		switch k {
		case "distance":
			in.ManualDistanceMeters, err = strconv.ParseFloat(v, 64)
		case "laps":
			in.Laps, err = strconv.Atoi(v)
		case "resistance":
			in.ResistanceLevel, err = strconv.Atoi(v)
		case "incline":
			in.InclinePercent, err = strconv.ParseFloat(v, 64)
		case "floors":
			in.Floors, err = strconv.Atoi(v)
		default:
			return dto.FinishInput{}, fmt.Errorf("unknown measurement %q", k)
		}
		if err != nil {
			return dto.FinishInput{}, fmt.Errorf("invalid %s: %q", k, v)
		}
	}
	return in, nil
}

// FormatElapsed renders seconds as h:mm:ss, or mm:ss under an hour.
func FormatElapsed(seconds float64) string {
	total := int64(seconds)
	if total < 0 {
		total = 0
	}
	h, mnt, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mnt, s)
	}
	return fmt.Sprintf("%02d:%02d", mnt, s)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// ─── async commands ───────────────────────────────────────────────────────────

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) transitionCmd(verb string, call func(context.Context) (dto.SnapshotOutput, error)) tea.Cmd {
	return func() tea.Msg {
		snap, err := call(context.Background())
		return transitionMsg{snap: snap, verb: verb, err: err}
	}
}

func (m Model) finishCmd(extras dto.FinishInput) tea.Cmd {
	return func() tea.Msg {
		out, err := m.session.Finish(context.Background(), extras)
		return finishedMsg{out: out, err: err}
	}
}

func (m Model) cancelCmd() tea.Cmd {
	return func() tea.Msg {
		out, err := m.session.Cancel(context.Background())
		return cancelledMsg{out: out, err: err}
	}
}

func (m Model) flushCmd() tea.Cmd {
	return func() tea.Msg {
		out, err := m.session.FlushNow(context.Background())
		return flushedMsg{out: out, err: err}
	}
}

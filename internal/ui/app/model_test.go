package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"gymtrack/internal/modules/activity/dto"
	"gymtrack/internal/ui/app"
)

type fakeSession struct {
	snap     dto.SnapshotOutput
	calls    []string
	finishIn dto.FinishInput
	pauseErr error
}

func (f *fakeSession) Pause(context.Context) (dto.SnapshotOutput, error) {
	f.calls = append(f.calls, "pause")
	if f.pauseErr != nil {
		return dto.SnapshotOutput{}, f.pauseErr
	}
	f.snap.Status = "paused"
	return f.snap, nil
}

func (f *fakeSession) Resume(context.Context) (dto.SnapshotOutput, error) {
	f.calls = append(f.calls, "resume")
	f.snap.Status = "active"
	return f.snap, nil
}

func (f *fakeSession) Finish(_ context.Context, in dto.FinishInput) (dto.FinishOutput, error) {
	f.calls = append(f.calls, "finish")
	f.finishIn = in
	return dto.FinishOutput{SessionID: f.snap.SessionID, Confirmed: true}, nil
}

func (f *fakeSession) Cancel(context.Context) (dto.CancelOutput, error) {
	f.calls = append(f.calls, "cancel")
	return dto.CancelOutput{SessionID: f.snap.SessionID, BackendConfirmed: true}, nil
}

func (f *fakeSession) Snapshot(context.Context) dto.SnapshotOutput {
	return f.snap
}

func (f *fakeSession) FlushNow(context.Context) (dto.FlushOutput, error) {
	f.calls = append(f.calls, "flush")
	return dto.FlushOutput{Sent: 3}, nil
}

func press(t *testing.T, m tea.Model, keys string) (tea.Model, tea.Cmd) {
	t.Helper()
	return m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(keys)})
}

// settle runs cmd and feeds its message back, the way the bubbletea runtime would.
func settle(t *testing.T, m tea.Model, cmd tea.Cmd) tea.Model {
	t.Helper()
	if cmd == nil {
		t.Fatalf("expected a command")
	}
	next, _ := m.Update(cmd())
	return next
}

func newFake() *fakeSession {
	return &fakeSession{snap: dto.SnapshotOutput{
		SessionID:      "sess-1",
		ActivityType:   "run",
		Mode:           "gps",
		Status:         "active",
		ElapsedSeconds: 65,
		DistanceMeters: 150,
		Pace:           "07:13",
	}}
}

func TestModelPauseResumeToggle(t *testing.T) {
	t.Parallel()
	fake := newFake()
	var m tea.Model = app.NewModel(fake)

	m, cmd := press(t, m, "p")
	m = settle(t, m, cmd)
	if !strings.Contains(m.View(), "PAUSED") {
		t.Fatalf("expected paused badge in view:\n%s", m.View())
	}
	m, cmd = press(t, m, "p")
	m = settle(t, m, cmd)
	if got := strings.Join(fake.calls, ","); got != "pause,resume" {
		t.Fatalf("unexpected calls %s", got)
	}
	if !strings.Contains(m.View(), "ACTIVE") {
		t.Fatalf("expected active badge in view:\n%s", m.View())
	}
}

func TestModelIgnoresKeysWhileActionPending(t *testing.T) {
	t.Parallel()
	fake := newFake()
	var m tea.Model = app.NewModel(fake)

	m, first := press(t, m, "p")
	if first == nil {
		t.Fatalf("expected pause command")
	}
	_, second := press(t, m, "f")
	if second != nil {
		t.Fatalf("expected finish to be refused while pause is pending")
	}
}

func TestModelShowsTransitionError(t *testing.T) {
	t.Parallel()
	fake := newFake()
	fake.pauseErr = errors.New("backend unavailable")
	var m tea.Model = app.NewModel(fake)

	m, cmd := press(t, m, "p")
	m = settle(t, m, cmd)
	if !strings.Contains(m.View(), "pause failed: backend unavailable") {
		t.Fatalf("expected error in status bar:\n%s", m.View())
	}
	if !strings.Contains(m.View(), "ACTIVE") {
		t.Fatalf("session should still show active")
	}
}

func TestModelFinishQuitsWithSummary(t *testing.T) {
	t.Parallel()
	fake := newFake()
	var m tea.Model = app.NewModel(fake)

	m, cmd := press(t, m, "f")
	next, quit := m.Update(cmd())
	if quit == nil {
		t.Fatalf("expected quit after finish")
	}
	out, ok := next.(app.Model).Finished()
	if !ok || out.SessionID != "sess-1" || !out.Confirmed {
		t.Fatalf("unexpected finish summary %+v ok=%v", out, ok)
	}
}

func TestModelPaletteFinishWithExtras(t *testing.T) {
	t.Parallel()
	fake := newFake()
	fake.snap.ActivityType = "rowing"
	fake.snap.Mode = "manual"
	var m tea.Model = app.NewModel(fake)

	m, _ = press(t, m, ":")
	m, _ = press(t, m, "finish distance=2000 laps=4")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m, cmd = m.Update(cmd())
	settle(t, m, cmd)
	if fake.finishIn.ManualDistanceMeters != 2000 || fake.finishIn.Laps != 4 {
		t.Fatalf("unexpected extras %+v", fake.finishIn)
	}
}

func TestParseExtras(t *testing.T) {
	t.Parallel()
	in, err := app.ParseExtras([]string{"resistance=8", "incline=2.5", "floors=30"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if in.ResistanceLevel != 8 || in.InclinePercent != 2.5 || in.Floors != 30 {
		t.Fatalf("unexpected extras %+v", in)
	}
	for _, bad := range [][]string{{"laps"}, {"laps=two"}, {"heart=150"}} {
		if _, err := app.ParseExtras(bad); err == nil {
			t.Fatalf("expected error for %v", bad)
		}
	}
}

func TestFormatElapsed(t *testing.T) {
	t.Parallel()
	cases := map[float64]string{0: "00:00", 65: "01:05", 3725.9: "1:02:05", -3: "00:00"}
	for in, want := range cases {
		if got := app.FormatElapsed(in); got != want {
			t.Fatalf("FormatElapsed(%v) = %s, want %s", in, got, want)
		}
	}
}

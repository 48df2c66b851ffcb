package out

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gymtrack/internal/modules/activity/domain"
	activityout "gymtrack/internal/modules/activity/port/out"
	"gymtrack/internal/platform/markdown"
	"gymtrack/internal/platform/slug"
)

// JournalEntry is the frontmatter of a journal note.
type JournalEntry struct {
	SchemaVersion  int           `yaml:"schema_version"`
	ID             string        `yaml:"id"`
	StudentID      string        `yaml:"student_id"`
	ActivityType   string        `yaml:"activity_type"`
	Mode           string        `yaml:"mode"`
	Status         string        `yaml:"status"`
	StartedAt      string        `yaml:"started_at"`
	FinishedAt     string        `yaml:"finished_at,omitempty"`
	ActiveSeconds  float64       `yaml:"active_seconds"`
	DistanceMeters float64       `yaml:"distance_m"`
	AvgSpeedKmh    float64       `yaml:"avg_speed_kmh"`
	MaxSpeedKmh    float64       `yaml:"max_speed_kmh"`
	Pace           string        `yaml:"pace"`
	CaloriesBurned float64       `yaml:"calories_burned"`
	Points         int           `yaml:"points"`
	Extras         domain.Extras `yaml:"extras,omitempty"`
}

// MarkdownJournal writes one note per session under journal/YYYY/MM/DD.
type MarkdownJournal struct {
	dataDir string
	filter  domain.NoiseFilter
}

func NewMarkdownJournal(dataDir string, filter domain.NoiseFilter) activityout.Journal {
	if filter.MinMovementMeters <= 0 {
		filter = domain.DefaultNoiseFilter()
	}
	return &MarkdownJournal{dataDir: dataDir, filter: filter}
}

func (j *MarkdownJournal) Save(_ context.Context, detail domain.SessionDetail) (string, error) {
	s := detail.Session
	if s.ID == "" {
		return "", fmt.Errorf("journal entry needs a session id")
	}
	date := s.StartedAt.UTC()
	dir := filepath.Join(j.dataDir, "journal", date.Format("2006"), date.Format("01"), date.Format("02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create journal dir: %w", err)
	}
	path := filepath.Join(dir, slug.Note(date, string(s.ActivityType), s.ID))

	var active float64
	if s.ActiveSeconds != nil {
		active = *s.ActiveSeconds
	}
	pace, ok := domain.Pace(s.DistanceMeters, active)
	entry := JournalEntry{
		SchemaVersion:  domain.SchemaVersion,
		ID:             s.ID,
		StudentID:      s.StudentID,
		ActivityType:   string(s.ActivityType),
		Mode:           string(s.Mode),
		Status:         string(s.Status),
		StartedAt:      s.StartedAt.UTC().Format(time.RFC3339),
		ActiveSeconds:  active,
		DistanceMeters: round(s.DistanceMeters, 1),
		AvgSpeedKmh:    round(s.AvgSpeedKmh, 2),
		MaxSpeedKmh:    round(s.MaxSpeedKmh, 2),
		Pace:           domain.Stats{Pace: pace, PaceKnown: ok}.PaceLabel(),
		CaloriesBurned: round(s.CaloriesBurned, 1),
		Points:         len(detail.Points),
		Extras:         s.Extras,
	}
	if !s.FinishedAt.IsZero() {
		entry.FinishedAt = s.FinishedAt.UTC().Format(time.RFC3339)
	}

	rendered, err := markdown.Render(entry, j.body(detail, entry))
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
		return "", fmt.Errorf("write journal entry: %w", err)
	}
	return path, nil
}

func (j *MarkdownJournal) body(detail domain.SessionDetail, entry JournalEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s %s\n\n", titleCase(entry.ActivityType), detail.Session.StartedAt.UTC().Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "- Distance: %.2f km\n", entry.DistanceMeters/1000)
	fmt.Fprintf(&b, "- Active time: %s\n", (time.Duration(entry.ActiveSeconds) * time.Second).String())
	fmt.Fprintf(&b, "- Pace: %s /km\n", entry.Pace)
	fmt.Fprintf(&b, "- Calories: %.0f kcal (estimate)\n", entry.CaloriesBurned)

	splits := j.filter.Splits(detail.Points)
	if len(splits) == 0 {
		return b.String()
	}
	rows := make([][]string, 0, len(splits))
	for _, s := range splits {
		rows = append(rows, []string{strconv.Itoa(s.Index), domain.FormatPace(s.Duration)})
	}
	b.WriteString("\n## Splits\n\n")
	b.WriteString(markdown.Table([]string{"km", "time"}, rows))
	return b.String()
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func titleCase(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

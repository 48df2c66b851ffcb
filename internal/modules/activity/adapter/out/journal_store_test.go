package out_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	activityadapter "gymtrack/internal/modules/activity/adapter/out"
	"gymtrack/internal/modules/activity/domain"
	"gymtrack/internal/platform/markdown"
)

func TestMarkdownJournalWritesFrontmatterAndSplits(t *testing.T) {
	t.Parallel()
	dataDir := t.TempDir()
	start := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	active := 240.0
	detail := domain.SessionDetail{
		Session: domain.RemoteSession{
			ID:             "sess-1",
			StudentID:      "stu-1",
			ActivityType:   domain.ActivityRun,
			Mode:           domain.ModeGPS,
			Status:         domain.StatusFinished,
			StartedAt:      start,
			FinishedAt:     start.Add(5 * time.Minute),
			DistanceMeters: 1200,
			AvgSpeedKmh:    18,
			MaxSpeedKmh:    19.44,
			CaloriesBurned: 27.44,
			ActiveSeconds:  &active,
		},
	}
	for i := 0; i <= 4; i++ {
		detail.Session.PointCount++
		detail.Points = append(detail.Points, pointAt(float64(i)*300, start.Add(time.Duration(i)*time.Minute)))
	}

	path, err := activityadapter.NewMarkdownJournal(dataDir, domain.NoiseFilter{}).Save(context.Background(), detail)
	if err != nil {
		t.Fatalf("save journal: %v", err)
	}
	wantPath := filepath.Join(dataDir, "journal", "2026", "03", "01", "070000-run-sess-1.md")
	if path != wantPath {
		t.Fatalf("expected %s, got %s", wantPath, path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}

	var got activityadapter.JournalEntry
	body, err := markdown.Split(string(raw), &got)
	if err != nil {
		t.Fatalf("split frontmatter: %v", err)
	}
	want := activityadapter.JournalEntry{
		SchemaVersion:  domain.SchemaVersion,
		ID:             "sess-1",
		StudentID:      "stu-1",
		ActivityType:   "run",
		Mode:           "gps",
		Status:         "finished",
		StartedAt:      "2026-03-01T07:00:00Z",
		FinishedAt:     "2026-03-01T07:05:00Z",
		ActiveSeconds:  240,
		DistanceMeters: 1200,
		AvgSpeedKmh:    18,
		MaxSpeedKmh:    19.44,
		Pace:           "03:20",
		CaloriesBurned: 27.4,
		Points:         5,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("frontmatter mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(body, "# Run 2026-03-01 07:00") {
		t.Fatalf("missing title in body:\n%s", body)
	}
	if !strings.Contains(body, "| 1 | 04:00 |") {
		t.Fatalf("missing first km split in body:\n%s", body)
	}
}

func TestMarkdownJournalManualSessionWithoutPoints(t *testing.T) {
	t.Parallel()
	dataDir := t.TempDir()
	detail := domain.SessionDetail{Session: domain.RemoteSession{
		ID:           "sess-2",
		ActivityType: domain.ActivityStationaryBike,
		Mode:         domain.ModeManual,
		Status:       domain.StatusFinished,
		StartedAt:    time.Date(2026, 3, 2, 18, 30, 5, 0, time.UTC),
		Extras:       domain.Extras{ResistanceLevel: 7},
	}}
	path, err := activityadapter.NewMarkdownJournal(dataDir, domain.DefaultNoiseFilter()).Save(context.Background(), detail)
	if err != nil {
		t.Fatalf("save journal: %v", err)
	}
	if filepath.Base(path) != "183005-stationary-bike-sess-2.md" {
		t.Fatalf("unexpected file name %s", filepath.Base(path))
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	content := string(raw)
	if strings.Contains(content, "## Splits") {
		t.Fatalf("expected no splits section:\n%s", content)
	}
	if !strings.Contains(content, "resistance_level: 7") || !strings.Contains(content, "pace: --:--") {
		t.Fatalf("unexpected frontmatter:\n%s", content)
	}
	if strings.Contains(content, "finished_at") {
		t.Fatalf("finished_at should be omitted when unknown:\n%s", content)
	}
}

func TestMarkdownJournalRequiresID(t *testing.T) {
	t.Parallel()
	_, err := activityadapter.NewMarkdownJournal(t.TempDir(), domain.DefaultNoiseFilter()).Save(context.Background(), domain.SessionDetail{})
	if err == nil {
		t.Fatalf("expected error for session without id")
	}
}

package domain

import (
	"fmt"
	"time"

	apperrors "gymtrack/internal/platform/errors"
)

// RemoteSession is the backend's record of a session.
type RemoteSession struct {
	ID             string       `json:"id"`
	StudentID      string       `json:"student_id"`
	ActivityType   ActivityType `json:"activity_type"`
	Mode           TrackingMode `json:"mode"`
	Status         Status       `json:"status"`
	StartedAt      time.Time    `json:"started_at"`
	FinishedAt     time.Time    `json:"finished_at,omitempty"`
	DistanceMeters float64      `json:"distance_m"`
	MaxSpeedKmh    float64      `json:"max_speed_kmh"`
	AvgSpeedKmh    float64      `json:"avg_speed_kmh"`
	CaloriesBurned float64      `json:"calories_burned"`
	// ActiveSeconds is nil when the backend has no recorded active time.
	ActiveSeconds *float64 `json:"active_seconds,omitempty"`
	PointCount    int      `json:"point_count"`
	Extras        Extras   `json:"extras"`
}

type SessionDetail struct {
	Session RemoteSession `json:"session"`
	Points  []TrackPoint  `json:"points"`
}

// RecoveryRequiredError reports an unfinished session left by an earlier run.
type RecoveryRequiredError struct {
	Stale RemoteSession
}

func (e *RecoveryRequiredError) Error() string {
	return fmt.Sprintf("%s: session %s (%s) started %s", apperrors.ErrRecoveryRequired, e.Stale.ID, e.Stale.ActivityType, e.Stale.StartedAt.Format(time.RFC3339))
}

func (e *RecoveryRequiredError) Unwrap() error {
	return apperrors.ErrRecoveryRequired
}

type Resolution string

const (
	ResolveFinishPartial Resolution = "finish"
	ResolveDiscard       Resolution = "discard"
)

func ParseResolution(raw string) (Resolution, error) {
	switch Resolution(raw) {
	case ResolveFinishPartial, ResolveDiscard:
		return Resolution(raw), nil
	case "finish_partial", "finish-partial":
		return ResolveFinishPartial, nil
	default:
		return "", fmt.Errorf("%w: unknown recovery resolution %q", apperrors.ErrInvalidInput, raw)
	}
}

// PartialDuration is the active time credited to a recovered session: now - startedAt,
// clamped to [0, max]. Both ends come from the backend clock; sample timestamps are never used.
func PartialDuration(stale RemoteSession, now time.Time, max time.Duration) time.Duration {
	d := now.Sub(stale.StartedAt)
	if d < 0 {
		d = 0
	}
	if max > 0 && d > max {
		d = max
	}
	return d
}

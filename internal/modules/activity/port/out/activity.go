package out

import (
	"context"
	"time"

	"gymtrack/internal/modules/activity/domain"
)

type StartRequest struct {
	StudentID    string
	ActivityType domain.ActivityType
	Mode         domain.TrackingMode
	// InitialPosition is the latest fix seen before start, if any.
	InitialPosition *domain.Coordinate
}

type StartResult struct {
	SessionID string
	StartedAt time.Time
}

type FinishRequest struct {
	SessionID      string
	ActiveSeconds  float64
	DistanceMeters float64
	AvgSpeedKmh    float64
	MaxSpeedKmh    float64
	CaloriesBurned float64
	Extras         domain.Extras
}

// Backend is the remote session service. AddPointsBatch must be idempotent for re-sent points.
type Backend interface {
	Start(ctx context.Context, req StartRequest) (StartResult, error)
	AddPointsBatch(ctx context.Context, sessionID string, points []domain.TrackPoint) error
	Pause(ctx context.Context, sessionID string) error
	Resume(ctx context.Context, sessionID string) error
	Finish(ctx context.Context, req FinishRequest) error
	Cancel(ctx context.Context, sessionID string) error
	GetInProgress(ctx context.Context, studentID string) (domain.RemoteSession, error)
	GetDetail(ctx context.Context, sessionID string) (domain.SessionDetail, error)
}

// GeoSource delivers position fixes until ctx is done or the source ends, then closes the channel.
type GeoSource interface {
	Open(ctx context.Context) (<-chan domain.Sample, error)
}

// SourceResolver turns a source locator such as "gpx:run.gpx" into a GeoSource.
type SourceResolver interface {
	Resolve(locator string) (GeoSource, error)
}

type Journal interface {
	Save(ctx context.Context, detail domain.SessionDetail) (string, error)
}

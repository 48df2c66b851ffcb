package out

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gymtrack/internal/modules/activity/domain"
	activityout "gymtrack/internal/modules/activity/port/out"
	"gymtrack/internal/platform/clock"
	apperrors "gymtrack/internal/platform/errors"
	"gymtrack/internal/platform/id"
	"gymtrack/internal/platform/logging"
	"gymtrack/internal/platform/tx"

	_ "modernc.org/sqlite"
)

// SQLiteBackend is a local implementation of the session service. Distance and max speed are
// recomputed from stored points on every batch so a recovered session has usable totals.
type SQLiteBackend struct {
	db     *sql.DB
	tx     tx.Manager
	clock  clock.Clock
	ids    id.Generator
	filter domain.NoiseFilter
	log    *slog.Logger
}

func OpenSQLite(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func NewSQLiteBackend(dbPath string, clk clock.Clock, ids id.Generator, filter domain.NoiseFilter, logger *slog.Logger) (*SQLiteBackend, error) {
	db, err := OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}
	if err := MigrateUp(db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	if filter.MinMovementMeters <= 0 {
		filter = domain.DefaultNoiseFilter()
	}
	return &SQLiteBackend{db: db, tx: tx.NewSQLManager(db), clock: clk, ids: ids, filter: filter, log: logging.OrDiscard(logger)}, nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func (b *SQLiteBackend) Start(ctx context.Context, req activityout.StartRequest) (activityout.StartResult, error) {
	if req.StudentID == "" {
		return activityout.StartResult{}, fmt.Errorf("%w: student id is required", apperrors.ErrInvalidInput)
	}
	if err := domain.ValidateMode(req.ActivityType, req.Mode); err != nil {
		return activityout.StartResult{}, err
	}
	now := b.clock.Now().UTC()
	res := activityout.StartResult{SessionID: b.ids.New(), StartedAt: now}
	var lat, lon any
	if req.InitialPosition != nil {
		lat, lon = req.InitialPosition.Latitude, req.InitialPosition.Longitude
	}
	err := b.tx.Within(ctx, func(ctx context.Context) error {
		q := tx.From(ctx, b.db)
		var existing string
		err := q.QueryRowContext(ctx, `SELECT id FROM activity_sessions WHERE student_id = ? AND status IN ('active', 'paused') LIMIT 1;`, req.StudentID).Scan(&existing)
		if err == nil {
			return fmt.Errorf("%w: %w: student has session %s open", apperrors.ErrBackendRejected, apperrors.ErrActiveSessionExists, existing)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("query open session: %w", err)
		}
		if _, err := q.ExecContext(ctx, `
INSERT INTO activity_sessions (id, student_id, activity_type, mode, status, started_at, start_latitude, start_longitude, active_since)
VALUES (?, ?, ?, ?, 'active', ?, ?, ?, ?);
`, res.SessionID, req.StudentID, string(req.ActivityType), string(req.Mode), formatTime(now), lat, lon, formatTime(now)); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
	if err != nil {
		return activityout.StartResult{}, err
	}
	b.log.Info("session created", "session_id", res.SessionID, "student_id", req.StudentID)
	return res, nil
}

// AddPointsBatch stores points idempotently: a re-sent point matches the unique key and is skipped.
func (b *SQLiteBackend) AddPointsBatch(ctx context.Context, sessionID string, points []domain.TrackPoint) error {
	return b.tx.Within(ctx, func(ctx context.Context) error {
		q := tx.From(ctx, b.db)
		status, err := b.status(ctx, q, sessionID)
		if err != nil {
			return err
		}
		if !status.Open() {
			return fmt.Errorf("%w: %w: session %s is %s", apperrors.ErrBackendRejected, apperrors.ErrInvalidTransition, sessionID, status)
		}
		for _, p := range points {
			if _, err := q.ExecContext(ctx, `
INSERT OR IGNORE INTO activity_points (session_id, recorded_at, latitude, longitude, speed_ms, accuracy_m)
VALUES (?, ?, ?, ?, ?, ?);
`, sessionID, p.Timestamp.UTC().UnixNano(), p.Latitude, p.Longitude, nullFloat(p.SpeedMs), nullFloat(p.AccuracyMeters)); err != nil {
				return fmt.Errorf("insert point: %w", err)
			}
		}
		stored, err := b.points(ctx, q, sessionID)
		if err != nil {
			return err
		}
		distance, maxSpeed := b.filter.Accumulate(stored)
		if _, err := q.ExecContext(ctx, `UPDATE activity_sessions SET distance_m = ?, max_speed_kmh = ? WHERE id = ?;`, distance, maxSpeed, sessionID); err != nil {
			return fmt.Errorf("update session totals: %w", err)
		}
		return nil
	})
}

func (b *SQLiteBackend) Pause(ctx context.Context, sessionID string) error {
	return b.tx.Within(ctx, func(ctx context.Context) error {
		q := tx.From(ctx, b.db)
		row, err := b.load(ctx, q, sessionID)
		if err != nil {
			return err
		}
		switch row.status {
		case domain.StatusPaused:
			return nil
		case domain.StatusActive:
		default:
			return fmt.Errorf("%w: %w: cannot pause a %s session", apperrors.ErrBackendRejected, apperrors.ErrInvalidTransition, row.status)
		}
		prior := row.priorSeconds
		if !row.activeSince.IsZero() {
			if d := b.clock.Now().Sub(row.activeSince).Seconds(); d > 0 {
				prior += d
			}
		}
		if _, err := q.ExecContext(ctx, `UPDATE activity_sessions SET status = 'paused', active_prior_s = ?, active_since = NULL WHERE id = ?;`, prior, sessionID); err != nil {
			return fmt.Errorf("pause session: %w", err)
		}
		return nil
	})
}

func (b *SQLiteBackend) Resume(ctx context.Context, sessionID string) error {
	return b.tx.Within(ctx, func(ctx context.Context) error {
		q := tx.From(ctx, b.db)
		row, err := b.load(ctx, q, sessionID)
		if err != nil {
			return err
		}
		switch row.status {
		case domain.StatusActive:
			return nil
		case domain.StatusPaused:
		default:
			return fmt.Errorf("%w: %w: cannot resume a %s session", apperrors.ErrBackendRejected, apperrors.ErrInvalidTransition, row.status)
		}
		if _, err := q.ExecContext(ctx, `UPDATE activity_sessions SET status = 'active', active_since = ? WHERE id = ?;`, formatTime(b.clock.Now()), sessionID); err != nil {
			return fmt.Errorf("resume session: %w", err)
		}
		return nil
	})
}

func (b *SQLiteBackend) Finish(ctx context.Context, req activityout.FinishRequest) error {
	extras, err := json.Marshal(req.Extras)
	if err != nil {
		return fmt.Errorf("encode extras: %w", err)
	}
	return b.tx.Within(ctx, func(ctx context.Context) error {
		q := tx.From(ctx, b.db)
		status, err := b.status(ctx, q, req.SessionID)
		if err != nil {
			return err
		}
		if status == domain.StatusFinished {
			return nil
		}
		if !status.Open() {
			return fmt.Errorf("%w: %w: cannot finish a %s session", apperrors.ErrBackendRejected, apperrors.ErrInvalidTransition, status)
		}
		if _, err := q.ExecContext(ctx, `
UPDATE activity_sessions
SET status = 'finished', finished_at = ?, active_since = NULL, active_seconds = ?,
    distance_m = ?, avg_speed_kmh = ?, max_speed_kmh = ?, calories_burned = ?, extras = ?
WHERE id = ?;
`, formatTime(b.clock.Now()), req.ActiveSeconds, req.DistanceMeters, req.AvgSpeedKmh, req.MaxSpeedKmh, req.CaloriesBurned, string(extras), req.SessionID); err != nil {
			return fmt.Errorf("finish session: %w", err)
		}
		return nil
	})
}

func (b *SQLiteBackend) Cancel(ctx context.Context, sessionID string) error {
	return b.tx.Within(ctx, func(ctx context.Context) error {
		q := tx.From(ctx, b.db)
		status, err := b.status(ctx, q, sessionID)
		if err != nil {
			return err
		}
		if status == domain.StatusCancelled {
			return nil
		}
		if !status.Open() {
			return fmt.Errorf("%w: %w: cannot cancel a %s session", apperrors.ErrBackendRejected, apperrors.ErrInvalidTransition, status)
		}
		if _, err := q.ExecContext(ctx, `UPDATE activity_sessions SET status = 'cancelled', finished_at = ?, active_since = NULL WHERE id = ?;`, formatTime(b.clock.Now()), sessionID); err != nil {
			return fmt.Errorf("cancel session: %w", err)
		}
		return nil
	})
}

func (b *SQLiteBackend) GetInProgress(ctx context.Context, studentID string) (domain.RemoteSession, error) {
	var sessionID string
	err := b.db.QueryRowContext(ctx, `SELECT id FROM activity_sessions WHERE student_id = ? AND status IN ('active', 'paused') LIMIT 1;`, studentID).Scan(&sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RemoteSession{}, apperrors.ErrNoInProgressSession
	}
	if err != nil {
		return domain.RemoteSession{}, fmt.Errorf("query in-progress session: %w", err)
	}
	row, err := b.load(ctx, b.db, sessionID)
	if err != nil {
		return domain.RemoteSession{}, err
	}
	return row.remote(), nil
}

func (b *SQLiteBackend) GetDetail(ctx context.Context, sessionID string) (domain.SessionDetail, error) {
	row, err := b.load(ctx, b.db, sessionID)
	if err != nil {
		return domain.SessionDetail{}, err
	}
	points, err := b.points(ctx, b.db, sessionID)
	if err != nil {
		return domain.SessionDetail{}, err
	}
	return domain.SessionDetail{Session: row.remote(), Points: points}, nil
}

type sessionRow struct {
	id             string
	studentID      string
	activityType   domain.ActivityType
	mode           domain.TrackingMode
	status         domain.Status
	startedAt      time.Time
	finishedAt     time.Time
	distance       float64
	maxSpeed       float64
	avgSpeed       float64
	calories       float64
	priorSeconds   float64
	activeSince    time.Time
	activeSeconds  sql.NullFloat64
	extras         domain.Extras
	pointCount     int
}

// remote reports finished sessions with their final duration and paused sessions with the
// active time banked at the pause. Both figures come from the backend clock alone.
func (r sessionRow) remote() domain.RemoteSession {
	out := domain.RemoteSession{
		ID:             r.id,
		StudentID:      r.studentID,
		ActivityType:   r.activityType,
		Mode:           r.mode,
		Status:         r.status,
		StartedAt:      r.startedAt,
		FinishedAt:     r.finishedAt,
		DistanceMeters: r.distance,
		MaxSpeedKmh:    r.maxSpeed,
		AvgSpeedKmh:    r.avgSpeed,
		CaloriesBurned: r.calories,
		PointCount:     r.pointCount,
		Extras:         r.extras,
	}
	if r.activeSeconds.Valid {
		v := r.activeSeconds.Float64
		out.ActiveSeconds = &v
		return out
	}
	if r.status == domain.StatusPaused {
		banked := r.priorSeconds
		out.ActiveSeconds = &banked
	}
	return out
}

func (b *SQLiteBackend) status(ctx context.Context, q tx.Queryer, sessionID string) (domain.Status, error) {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM activity_sessions WHERE id = ?;`, sessionID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: session %s", apperrors.ErrNotFound, sessionID)
	}
	if err != nil {
		return "", fmt.Errorf("query session status: %w", err)
	}
	return domain.Status(status), nil
}

func (b *SQLiteBackend) load(ctx context.Context, q tx.Queryer, sessionID string) (sessionRow, error) {
	var (
		row                                 sessionRow
		activityType, mode, status, started string
		finished, activeSince               sql.NullString
		extras                              string
	)
	err := q.QueryRowContext(ctx, `
SELECT s.id, s.student_id, s.activity_type, s.mode, s.status, s.started_at, s.finished_at,
       s.distance_m, s.max_speed_kmh, s.avg_speed_kmh, s.calories_burned,
       s.active_prior_s, s.active_since, s.active_seconds, s.extras,
       (SELECT COUNT(*) FROM activity_points p WHERE p.session_id = s.id)
FROM activity_sessions s
WHERE s.id = ?;
`, sessionID).Scan(
		&row.id, &row.studentID, &activityType, &mode, &status, &started, &finished,
		&row.distance, &row.maxSpeed, &row.avgSpeed, &row.calories,
		&row.priorSeconds, &activeSince, &row.activeSeconds, &extras,
		&row.pointCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return sessionRow{}, fmt.Errorf("%w: session %s", apperrors.ErrNotFound, sessionID)
	}
	if err != nil {
		return sessionRow{}, fmt.Errorf("load session: %w", err)
	}
	row.activityType = domain.ActivityType(activityType)
	row.mode = domain.TrackingMode(mode)
	row.status = domain.Status(status)
	if row.startedAt, err = parseTime(started); err != nil {
		return sessionRow{}, err
	}
	if finished.Valid {
		if row.finishedAt, err = parseTime(finished.String); err != nil {
			return sessionRow{}, err
		}
	}
	if activeSince.Valid {
		if row.activeSince, err = parseTime(activeSince.String); err != nil {
			return sessionRow{}, err
		}
	}
	if err := json.Unmarshal([]byte(extras), &row.extras); err != nil {
		return sessionRow{}, fmt.Errorf("decode extras: %w", err)
	}
	return row, nil
}

func (b *SQLiteBackend) points(ctx context.Context, q tx.Queryer, sessionID string) ([]domain.TrackPoint, error) {
	rows, err := q.QueryContext(ctx, `
SELECT recorded_at, latitude, longitude, speed_ms, accuracy_m
FROM activity_points
WHERE session_id = ?
ORDER BY recorded_at ASC, rowid ASC;
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()

	out := []domain.TrackPoint{}
	for rows.Next() {
		var (
			p               domain.TrackPoint
			recorded        int64
			speed, accuracy sql.NullFloat64
		)
		if err := rows.Scan(&recorded, &p.Latitude, &p.Longitude, &speed, &accuracy); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		p.Timestamp = time.Unix(0, recorded).UTC()
		if speed.Valid {
			p.SpeedMs = domain.Float(speed.Float64)
		}
		if accuracy.Valid {
			p.AccuracyMeters = domain.Float(accuracy.Float64)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate points: %w", err)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", raw, err)
	}
	return t, nil
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

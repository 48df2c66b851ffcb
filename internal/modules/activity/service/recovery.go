package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gymtrack/internal/modules/activity/domain"
	activityout "gymtrack/internal/modules/activity/port/out"
	"gymtrack/internal/platform/clock"
	apperrors "gymtrack/internal/platform/errors"
	"gymtrack/internal/platform/logging"
)

const DefaultRecoveryMaxDuration = 2 * time.Hour

type RecoveryOutcome struct {
	SessionID  string
	Resolution domain.Resolution
	Duration   time.Duration
	Stats      domain.Stats
}

// RecoveryManager finds sessions an earlier run left open and closes them on request.
// It never resolves one on its own.
type RecoveryManager struct {
	backend     activityout.Backend
	clock       clock.Clock
	maxDuration time.Duration
	timeout     time.Duration
	log         *slog.Logger
}

func NewRecoveryManager(backend activityout.Backend, clk clock.Clock, maxDuration, timeout time.Duration, logger *slog.Logger) *RecoveryManager {
	if maxDuration <= 0 {
		maxDuration = DefaultRecoveryMaxDuration
	}
	if timeout <= 0 {
		timeout = DefaultOptions().BackendTimeout
	}
	return &RecoveryManager{backend: backend, clock: clk, maxDuration: maxDuration, timeout: timeout, log: logging.OrDiscard(logger)}
}

func (r *RecoveryManager) Check(ctx context.Context, studentID string) (domain.RemoteSession, bool, error) {
	if studentID == "" {
		return domain.RemoteSession{}, false, fmt.Errorf("%w: student id is required", apperrors.ErrInvalidInput)
	}
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	stale, err := r.backend.GetInProgress(callCtx, studentID)
	if errors.Is(err, apperrors.ErrNoInProgressSession) {
		return domain.RemoteSession{}, false, nil
	}
	if err != nil {
		return domain.RemoteSession{}, false, err
	}
	return stale, true, nil
}

// Resolve re-reads the in-progress session and applies resolution only if it is still sessionID.
func (r *RecoveryManager) Resolve(ctx context.Context, studentID, sessionID string, resolution domain.Resolution, weightKg float64) (RecoveryOutcome, error) {
	stale, found, err := r.Check(ctx, studentID)
	if err != nil {
		return RecoveryOutcome{}, err
	}
	if !found {
		return RecoveryOutcome{}, apperrors.ErrNoInProgressSession
	}
	if sessionID != "" && stale.ID != sessionID {
		return RecoveryOutcome{}, fmt.Errorf("%w: session %s is no longer in progress (found %s)", apperrors.ErrNoInProgressSession, sessionID, stale.ID)
	}

	out := RecoveryOutcome{SessionID: stale.ID, Resolution: resolution}
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	switch resolution {
	case domain.ResolveFinishPartial:
		out.Duration = domain.PartialDuration(stale, r.clock.Now(), r.maxDuration)
		out.Stats = domain.ComputeStats(stale.ActivityType, stale.DistanceMeters, out.Duration, stale.MaxSpeedKmh, weightKg)
		err = r.backend.Finish(callCtx, activityout.FinishRequest{
			SessionID:      stale.ID,
			ActiveSeconds:  out.Stats.ActiveSeconds,
			DistanceMeters: out.Stats.DistanceMeters,
			AvgSpeedKmh:    out.Stats.AvgSpeedKmh,
			MaxSpeedKmh:    out.Stats.MaxSpeedKmh,
			CaloriesBurned: out.Stats.CaloriesBurned,
			Extras:         stale.Extras,
		})
	case domain.ResolveDiscard:
		err = r.backend.Cancel(callCtx, stale.ID)
	default:
		return RecoveryOutcome{}, fmt.Errorf("%w: unknown recovery resolution %q", apperrors.ErrInvalidInput, resolution)
	}
	if err != nil {
		return RecoveryOutcome{}, fmt.Errorf("resolve session %s: %w", stale.ID, err)
	}
	r.log.Info("recovered session resolved", "session_id", stale.ID, "student_id", studentID, "resolution", resolution, "duration", out.Duration)
	return out, nil
}

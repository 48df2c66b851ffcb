package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gymtrack/internal/modules/activity/domain"
	"gymtrack/internal/modules/activity/dto"
	activityin "gymtrack/internal/modules/activity/port/in"
	activityout "gymtrack/internal/modules/activity/port/out"
	"gymtrack/internal/modules/activity/service"
	apperrors "gymtrack/internal/platform/errors"
	"gymtrack/internal/platform/logging"
)

type Interactor struct {
	ctrl     *service.Controller
	backend  activityout.Backend
	sources  activityout.SourceResolver
	journal  activityout.Journal
	weightKg float64
	log      *slog.Logger
}

func NewInteractor(ctrl *service.Controller, backend activityout.Backend, sources activityout.SourceResolver, journal activityout.Journal, referenceWeightKg float64, logger *slog.Logger) activityin.Usecase {
	if referenceWeightKg <= 0 {
		referenceWeightKg = domain.DefaultReferenceWeightKg
	}
	return &Interactor{ctrl: ctrl, backend: backend, sources: sources, journal: journal, weightKg: referenceWeightKg, log: logging.OrDiscard(logger)}
}

func (i *Interactor) Start(ctx context.Context, input dto.StartInput) (dto.SnapshotOutput, error) {
	activityType, err := domain.ParseActivityType(input.ActivityType)
	if err != nil {
		return dto.SnapshotOutput{}, err
	}
	rawMode := input.Mode
	if rawMode == "" {
		rawMode = string(domain.ModeManual)
		if activityType.Outdoor() {
			rawMode = string(domain.ModeGPS)
		}
	}
	mode, err := domain.ParseTrackingMode(rawMode)
	if err != nil {
		return dto.SnapshotOutput{}, err
	}
	if err := domain.ValidateMode(activityType, mode); err != nil {
		return dto.SnapshotOutput{}, err
	}

	params := service.StartParams{StudentID: input.StudentID, ActivityType: activityType, Mode: mode, WeightKg: input.WeightKg}
	if mode == domain.ModeGPS {
		if i.sources == nil || input.Source == "" {
			return dto.SnapshotOutput{}, fmt.Errorf("%w: no position source given", apperrors.ErrGeolocationUnavailable)
		}
		source, err := i.sources.Resolve(input.Source)
		if err != nil {
			return dto.SnapshotOutput{}, err
		}
		params.Source = source
	}
	snap, err := i.ctrl.Start(ctx, params)
	if err != nil {
		return dto.SnapshotOutput{}, err
	}
	return toSnapshotOutput(snap), nil
}

func (i *Interactor) Pause(ctx context.Context) (dto.SnapshotOutput, error) {
	snap, err := i.ctrl.Pause(ctx)
	if err != nil {
		return dto.SnapshotOutput{}, err
	}
	return toSnapshotOutput(snap), nil
}

func (i *Interactor) Resume(ctx context.Context) (dto.SnapshotOutput, error) {
	snap, err := i.ctrl.Resume(ctx)
	if err != nil {
		return dto.SnapshotOutput{}, err
	}
	return toSnapshotOutput(snap), nil
}

func (i *Interactor) Finish(ctx context.Context, input dto.FinishInput) (dto.FinishOutput, error) {
	res, err := i.ctrl.Finish(ctx, domain.Extras{
		ManualDistanceMeters: input.ManualDistanceMeters,
		Laps:                 input.Laps,
		ResistanceLevel:      input.ResistanceLevel,
		InclinePercent:       input.InclinePercent,
		Floors:               input.Floors,
	})
	if err != nil {
		return dto.FinishOutput{}, err
	}
	out := dto.FinishOutput{
		SessionID:      res.SessionID,
		Confirmed:      res.Confirmed,
		ElapsedSeconds: res.Stats.ActiveSeconds,
		DistanceMeters: res.Stats.DistanceMeters,
		AvgSpeedKmh:    res.Stats.AvgSpeedKmh,
		MaxSpeedKmh:    res.Stats.MaxSpeedKmh,
		Pace:           res.Stats.PaceLabel(),
		CaloriesBurned: res.Stats.CaloriesBurned,
		PointCount:     res.PointCount,
		UnsyncedPoints: res.Unsynced,
	}
	if i.journal != nil {
		if detail, ok := i.ctrl.LocalDetail(); ok {
			path, err := i.journal.Save(ctx, detail)
			if err != nil {
				i.log.Warn("journal entry not written", "session_id", res.SessionID, "error", err)
			} else {
				out.JournalPath = path
			}
		}
	}
	return out, nil
}

func (i *Interactor) Cancel(ctx context.Context) (dto.CancelOutput, error) {
	res, err := i.ctrl.Cancel(ctx)
	if err != nil {
		return dto.CancelOutput{}, err
	}
	return dto.CancelOutput{SessionID: res.SessionID, BackendConfirmed: res.BackendConfirmed}, nil
}

func (i *Interactor) Snapshot(context.Context) dto.SnapshotOutput {
	return toSnapshotOutput(i.ctrl.Snapshot())
}

func (i *Interactor) Ingest(_ context.Context, input dto.SampleInput) error {
	return i.ctrl.Ingest(domain.Sample{
		Latitude:       input.Latitude,
		Longitude:      input.Longitude,
		AccuracyMeters: input.AccuracyMeters,
		SpeedMs:        input.SpeedMs,
		Timestamp:      input.Timestamp,
	})
}

func (i *Interactor) FlushNow(ctx context.Context) (dto.FlushOutput, error) {
	sent, err := i.ctrl.FlushNow(ctx)
	return dto.FlushOutput{Sent: sent, Pending: i.ctrl.Snapshot().PendingPoints}, err
}

func (i *Interactor) CheckRecovery(ctx context.Context, studentID string) (dto.InProgressOutput, error) {
	stale, found, err := i.ctrl.CheckRecovery(ctx, studentID)
	if err != nil {
		return dto.InProgressOutput{}, err
	}
	if !found {
		return dto.InProgressOutput{}, nil
	}
	return dto.InProgressOutput{
		Found:          true,
		SessionID:      stale.ID,
		ActivityType:   string(stale.ActivityType),
		Status:         string(stale.Status),
		StartedAt:      stale.StartedAt,
		DistanceMeters: stale.DistanceMeters,
		PointCount:     stale.PointCount,
	}, nil
}

func (i *Interactor) ResolveRecovery(ctx context.Context, input dto.ResolveRecoveryInput) (dto.ResolveRecoveryOutput, error) {
	resolution, err := domain.ParseResolution(input.Resolution)
	if err != nil {
		return dto.ResolveRecoveryOutput{}, err
	}
	out, err := i.ctrl.ResolveRecovery(ctx, input.StudentID, input.SessionID, resolution, input.WeightKg)
	if err != nil {
		return dto.ResolveRecoveryOutput{}, err
	}
	return dto.ResolveRecoveryOutput{
		SessionID:      out.SessionID,
		Resolution:     string(out.Resolution),
		ElapsedSeconds: out.Stats.ActiveSeconds,
		DistanceMeters: out.Stats.DistanceMeters,
		CaloriesBurned: out.Stats.CaloriesBurned,
	}, nil
}

func (i *Interactor) Detail(ctx context.Context, sessionID string) (dto.DetailOutput, error) {
	detail, err := i.getDetail(ctx, sessionID)
	if err != nil {
		return dto.DetailOutput{}, err
	}
	return toDetailOutput(detail), nil
}

func (i *Interactor) Export(ctx context.Context, sessionID string) (dto.ExportOutput, error) {
	if i.journal == nil {
		return dto.ExportOutput{}, fmt.Errorf("journal is not configured")
	}
	detail, err := i.getDetail(ctx, sessionID)
	if err != nil {
		return dto.ExportOutput{}, err
	}
	path, err := i.journal.Save(ctx, detail)
	if err != nil {
		return dto.ExportOutput{}, err
	}
	return dto.ExportOutput{SessionID: detail.Session.ID, Path: path}, nil
}

func (i *Interactor) EstimateCalories(_ context.Context, input dto.EstimateInput) (dto.EstimateOutput, error) {
	activityType, err := domain.ParseActivityType(input.ActivityType)
	if err != nil {
		return dto.EstimateOutput{}, err
	}
	if input.Minutes < 0 {
		return dto.EstimateOutput{}, fmt.Errorf("%w: minutes must be non-negative", apperrors.ErrInvalidInput)
	}
	weight := input.WeightKg
	if weight <= 0 {
		weight = i.weightKg
	}
	return dto.EstimateOutput{
		ActivityType:   string(activityType),
		MET:            activityType.MET(),
		WeightKg:       weight,
		CaloriesBurned: domain.Calories(activityType.MET(), weight, input.Minutes),
	}, nil
}

func (i *Interactor) getDetail(ctx context.Context, sessionID string) (domain.SessionDetail, error) {
	if sessionID == "" {
		return domain.SessionDetail{}, fmt.Errorf("%w: session id is required", apperrors.ErrInvalidInput)
	}
	return i.backend.GetDetail(ctx, sessionID)
}

func toSnapshotOutput(s service.Snapshot) dto.SnapshotOutput {
	return dto.SnapshotOutput{
		SessionID:      s.SessionID,
		StudentID:      s.StudentID,
		ActivityType:   string(s.ActivityType),
		Mode:           string(s.Mode),
		Status:         string(s.Status),
		StartedAt:      s.StartedAt,
		ElapsedSeconds: s.Stats.ActiveSeconds,
		DistanceMeters: s.Stats.DistanceMeters,
		AvgSpeedKmh:    s.Stats.AvgSpeedKmh,
		MaxSpeedKmh:    s.Stats.MaxSpeedKmh,
		Pace:           s.Stats.PaceLabel(),
		CaloriesBurned: s.Stats.CaloriesBurned,
		PointCount:     s.PointCount,
		PendingPoints:  s.PendingPoints,
		DroppedSamples: s.Dropped,
		FlushFailures:  s.FlushFailures,
		LastFlushAt:    s.LastFlushAt,
		LastFlushError: s.LastFlushErr,
		Busy:           s.Busy,
	}
}

func toDetailOutput(d domain.SessionDetail) dto.DetailOutput {
	s := d.Session
	var active time.Duration
	if s.ActiveSeconds != nil {
		active = time.Duration(*s.ActiveSeconds * float64(time.Second))
	}
	pace, ok := domain.Pace(s.DistanceMeters, active.Seconds())
	paceLabel := domain.Stats{Pace: pace, PaceKnown: ok}.PaceLabel()
	out := dto.DetailOutput{
		SessionID:      s.ID,
		StudentID:      s.StudentID,
		ActivityType:   string(s.ActivityType),
		Mode:           string(s.Mode),
		Status:         string(s.Status),
		StartedAt:      s.StartedAt,
		FinishedAt:     s.FinishedAt,
		ElapsedSeconds: active.Seconds(),
		DistanceMeters: s.DistanceMeters,
		AvgSpeedKmh:    s.AvgSpeedKmh,
		MaxSpeedKmh:    s.MaxSpeedKmh,
		Pace:           paceLabel,
		CaloriesBurned: s.CaloriesBurned,
		Points:         make([]dto.PointOutput, 0, len(d.Points)),
	}
	for _, p := range d.Points {
		po := dto.PointOutput{Latitude: p.Latitude, Longitude: p.Longitude, Timestamp: p.Timestamp}
		if kmh, ok := p.SpeedKmh(); ok {
			po.SpeedKmh = &kmh
		}
		out.Points = append(out.Points, po)
	}
	return out
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gymtrack/internal/modules/activity/domain"
	activityout "gymtrack/internal/modules/activity/port/out"
	"gymtrack/internal/platform/clock"
	apperrors "gymtrack/internal/platform/errors"
	"gymtrack/internal/platform/logging"
)

type Options struct {
	FlushInterval     time.Duration
	BackendTimeout    time.Duration
	MaxBatchPoints    int
	ReferenceWeightKg float64
	Filter            domain.NoiseFilter
	NewTicker         clock.TickerFactory
	Logger            *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		FlushInterval:     10 * time.Second,
		BackendTimeout:    10 * time.Second,
		MaxBatchPoints:    500,
		ReferenceWeightKg: domain.DefaultReferenceWeightKg,
		Filter:            domain.DefaultNoiseFilter(),
		NewTicker:         clock.NewSystemTicker,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.FlushInterval <= 0 {
		o.FlushInterval = d.FlushInterval
	}
	if o.BackendTimeout <= 0 {
		o.BackendTimeout = d.BackendTimeout
	}
	if o.MaxBatchPoints <= 0 {
		o.MaxBatchPoints = d.MaxBatchPoints
	}
	if o.ReferenceWeightKg <= 0 {
		o.ReferenceWeightKg = d.ReferenceWeightKg
	}
	if o.Filter.MinMovementMeters <= 0 {
		o.Filter = d.Filter
	}
	if o.NewTicker == nil {
		o.NewTicker = d.NewTicker
	}
	o.Logger = logging.OrDiscard(o.Logger)
	return o
}

type StartParams struct {
	StudentID    string
	ActivityType domain.ActivityType
	Mode         domain.TrackingMode
	WeightKg     float64
	Source       activityout.GeoSource
}

type FinishResult struct {
	SessionID string
	Stats     domain.Stats
	// Confirmed is false when the backend did not answer but every point had been delivered.
	Confirmed  bool
	PointCount int
	Unsynced   int
}

type CancelResult struct {
	SessionID        string
	BackendConfirmed bool
}

// Snapshot is a consistent copy of the controller state for display.
type Snapshot struct {
	SessionID     string
	StudentID     string
	ActivityType  domain.ActivityType
	Mode          domain.TrackingMode
	Status        domain.Status
	StartedAt     time.Time
	Stats         domain.Stats
	PointCount    int
	PendingPoints int
	Dropped       int
	FlushFailures int
	LastFlushAt   time.Time
	LastFlushErr  string
	Busy          bool
}

// Controller drives one session at a time through its lifecycle. mu guards the session,
// the pending batch and the busy flag; backend calls never run under it.
type Controller struct {
	backend  activityout.Backend
	clock    clock.Clock
	recovery *RecoveryManager
	opts     Options
	log      *slog.Logger

	mu            sync.Mutex
	session       *domain.Session
	batch         domain.PendingBatch
	busy          bool
	weightKg      float64
	lastFix       *domain.Coordinate
	flushFailures int
	lastFlushAt   time.Time
	lastFlushErr  error
	rt            *runtime
	// held collects samples that arrive while a pause waits for the backend. They are
	// ingested if the pause rolls back and counted as dropped if it sticks.
	pausing bool
	held    []domain.Sample

	flushMu sync.Mutex
}

func NewController(backend activityout.Backend, clk clock.Clock, recovery *RecoveryManager, opts Options) *Controller {
	opts = opts.withDefaults()
	return &Controller{
		backend:  backend,
		clock:    clk,
		recovery: recovery,
		opts:     opts,
		log:      opts.Logger,
	}
}

func (c *Controller) Start(ctx context.Context, params StartParams) (Snapshot, error) {
	session, err := domain.NewSession(params.StudentID, params.ActivityType, params.Mode)
	if err != nil {
		return Snapshot{}, err
	}
	if params.Mode == domain.ModeGPS && params.Source == nil {
		return Snapshot{}, fmt.Errorf("%w: no position source configured", apperrors.ErrGeolocationUnavailable)
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return Snapshot{}, apperrors.ErrSessionBusy
	}
	if c.session != nil && c.session.Status != domain.StatusIdle && !c.session.Status.Terminal() {
		c.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: session %s is %s", apperrors.ErrActiveSessionExists, c.session.ID, c.session.Status)
	}
	c.busy = true
	c.mu.Unlock()

	if c.recovery != nil {
		stale, found, err := c.recovery.Check(ctx, params.StudentID)
		if err != nil {
			c.setBusy(false)
			return Snapshot{}, fmt.Errorf("check in-progress session: %w", err)
		}
		if found {
			c.setBusy(false)
			return Snapshot{}, &domain.RecoveryRequiredError{Stale: stale}
		}
	}

	rt := newRuntime(ctx)
	if params.Mode == domain.ModeGPS {
		samples, err := params.Source.Open(rt.ctx)
		if err != nil {
			rt.stop()
			c.setBusy(false)
			if apperrors.KindOf(err) != apperrors.KindGeolocation {
				err = fmt.Errorf("%w: %v", apperrors.ErrGeolocationUnavailable, err)
			}
			return Snapshot{}, err
		}
		rt.goPump(c, samples)
	}

	c.mu.Lock()
	if err := session.Begin(); err != nil {
		c.busy = false
		c.mu.Unlock()
		rt.stop()
		return Snapshot{}, err
	}
	c.session = session
	c.batch.Reset()
	c.weightKg = params.WeightKg
	if c.weightKg <= 0 {
		c.weightKg = c.opts.ReferenceWeightKg
	}
	c.flushFailures = 0
	c.lastFlushAt = time.Time{}
	c.lastFlushErr = nil
	c.rt = rt
	c.mu.Unlock()

	req := activityout.StartRequest{
		StudentID:       params.StudentID,
		ActivityType:    params.ActivityType,
		Mode:            params.Mode,
		InitialPosition: c.latestFix(),
	}
	callCtx, cancel := context.WithTimeout(ctx, c.opts.BackendTimeout)
	res, err := c.backend.Start(callCtx, req)
	cancel()

	c.mu.Lock()
	if session.Status == domain.StatusCancelled {
		c.busy = false
		c.mu.Unlock()
		if err == nil && res.SessionID != "" {
			c.cancelRemote(ctx, res.SessionID)
		}
		return Snapshot{}, fmt.Errorf("%w: cancelled while starting", apperrors.ErrSessionCancelled)
	}
	if err != nil {
		_ = session.Reject()
		c.rt = nil
		c.busy = false
		c.mu.Unlock()
		rt.stop()
		c.log.Warn("start rejected", "student_id", params.StudentID, "error", err)
		return Snapshot{}, fmt.Errorf("start session: %w", err)
	}
	if err := session.Confirm(res.SessionID, res.StartedAt, c.clock.Now()); err != nil {
		_ = session.Reject()
		c.rt = nil
		c.busy = false
		c.mu.Unlock()
		rt.stop()
		return Snapshot{}, err
	}
	c.busy = false
	rt.goSync(c)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.log.Info("session started", "session_id", res.SessionID, "student_id", params.StudentID, "activity", params.ActivityType, "mode", params.Mode)
	return snap, nil
}

// Pause freezes the clock locally, kicks a flush and tells the backend. A backend failure
// rolls the session back to Active.
func (c *Controller) Pause(ctx context.Context) (Snapshot, error) {
	return c.toggle(ctx, domain.EventPause)
}

func (c *Controller) Resume(ctx context.Context) (Snapshot, error) {
	return c.toggle(ctx, domain.EventResume)
}

func (c *Controller) toggle(ctx context.Context, ev domain.Event) (Snapshot, error) {
	c.mu.Lock()
	session, err := c.claimLocked()
	if err != nil {
		c.mu.Unlock()
		return Snapshot{}, err
	}
	cp := session.Checkpoint()
	now := c.clock.Now()
	if ev == domain.EventPause {
		err = session.Pause(now)
	} else {
		err = session.Resume(now)
	}
	if err != nil {
		c.busy = false
		c.mu.Unlock()
		return Snapshot{}, err
	}
	rt := c.rt
	id := session.ID
	c.pausing = ev == domain.EventPause
	c.mu.Unlock()

	if ev == domain.EventPause && rt != nil {
		rt.poke()
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.BackendTimeout)
	if ev == domain.EventPause {
		err = c.backend.Pause(callCtx, id)
	} else {
		err = c.backend.Resume(callCtx, id)
	}
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	held := c.held
	c.pausing, c.held = false, nil
	if err != nil {
		if c.session == session && !session.Status.Terminal() {
			session.Restore(cp)
			for _, sample := range held {
				_ = c.ingestLocked(sample)
			}
		}
		c.log.Warn("transition rolled back", "session_id", id, "event", ev, "error", err)
		return c.snapshotLocked(), fmt.Errorf("%s session: %w", ev, err)
	}
	session.Dropped += len(held)
	return c.snapshotLocked(), nil
}

// Finish stops recording, delivers what it can and asks the backend to close the session.
func (c *Controller) Finish(ctx context.Context, extras domain.Extras) (FinishResult, error) {
	c.mu.Lock()
	session, err := c.claimLocked()
	if err != nil {
		c.mu.Unlock()
		return FinishResult{}, err
	}
	if err := extras.Validate(session.ActivityType, session.Mode); err != nil {
		c.busy = false
		c.mu.Unlock()
		return FinishResult{}, err
	}
	cp := session.Checkpoint()
	prevExtras := session.Extras
	if err := session.BeginFinish(c.clock.Now()); err != nil {
		c.busy = false
		c.mu.Unlock()
		return FinishResult{}, err
	}
	session.Extras = extras
	c.mu.Unlock()

	c.flushMu.Lock()
	if _, err := c.flushPending(ctx); err != nil {
		c.log.Warn("final flush failed", "session_id", session.ID, "error", err)
	}
	c.flushMu.Unlock()

	c.mu.Lock()
	stats := session.Stats(c.clock.Now(), c.weightKg)
	unsynced := c.batch.Len()
	points := len(session.Points)
	c.mu.Unlock()

	req := activityout.FinishRequest{
		SessionID:      session.ID,
		ActiveSeconds:  stats.ActiveSeconds,
		DistanceMeters: stats.DistanceMeters,
		AvgSpeedKmh:    stats.AvgSpeedKmh,
		MaxSpeedKmh:    stats.MaxSpeedKmh,
		CaloriesBurned: stats.CaloriesBurned,
		Extras:         extras,
	}
	callCtx, cancel := context.WithTimeout(ctx, c.opts.BackendTimeout)
	err = c.backend.Finish(callCtx, req)
	cancel()

	result := FinishResult{SessionID: session.ID, Stats: stats, PointCount: points, Unsynced: unsynced}
	c.mu.Lock()
	switch {
	case err == nil:
		result.Confirmed = true
	case apperrors.KindOf(err) == apperrors.KindNetwork && unsynced == 0:
		c.log.Warn("finish unconfirmed, closing locally", "session_id", session.ID, "error", err)
	default:
		session.Restore(cp)
		session.Extras = prevExtras
		c.busy = false
		c.mu.Unlock()
		c.log.Warn("finish rolled back", "session_id", session.ID, "unsynced", unsynced, "error", err)
		return FinishResult{}, fmt.Errorf("finish session: %w", err)
	}
	_ = session.Complete(c.clock.Now())
	rt := c.rt
	c.rt = nil
	c.busy = false
	c.mu.Unlock()
	if rt != nil {
		rt.stop()
	}

	c.log.Info("session finished", "session_id", session.ID, "confirmed", result.Confirmed, "distance_m", stats.DistanceMeters, "points", points)
	return result, nil
}

// Cancel discards the local session whatever the backend says. During Starting it does not
// wait for the pending start; that call cancels the remote session itself.
func (c *Controller) Cancel(ctx context.Context) (CancelResult, error) {
	c.mu.Lock()
	session := c.session
	if session == nil || session.Status == domain.StatusIdle || session.Status.Terminal() {
		c.mu.Unlock()
		return CancelResult{}, apperrors.ErrNoActiveSession
	}
	starting := session.Status == domain.StatusStarting
	if c.busy && !starting {
		c.mu.Unlock()
		return CancelResult{}, apperrors.ErrSessionBusy
	}
	if err := session.Cancel(); err != nil {
		c.mu.Unlock()
		return CancelResult{}, err
	}
	c.batch.Reset()
	rt := c.rt
	c.rt = nil
	if !starting {
		c.busy = true
	}
	id := session.ID
	c.mu.Unlock()

	if rt != nil {
		rt.stop()
	}
	if starting {
		c.log.Info("session cancelled while starting", "student_id", session.StudentID)
		return CancelResult{}, nil
	}

	confirmed := c.cancelRemote(ctx, id)
	c.setBusy(false)
	c.log.Info("session cancelled", "session_id", id, "backend_confirmed", confirmed)
	return CancelResult{SessionID: id, BackendConfirmed: confirmed}, nil
}

// Ingest records one sample. The position pump calls it for every fix a source delivers.
func (c *Controller) Ingest(sample domain.Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fix := domain.Coordinate{Latitude: sample.Latitude, Longitude: sample.Longitude}
	if fix.Validate() == nil {
		c.lastFix = &fix
	}
	if c.session == nil {
		return apperrors.ErrNoActiveSession
	}
	if c.session.Status == domain.StatusStarting {
		return nil
	}
	if c.pausing && c.session.Status == domain.StatusPaused {
		c.held = append(c.held, sample)
		return nil
	}
	return c.ingestLocked(sample)
}

func (c *Controller) ingestLocked(sample domain.Sample) error {
	point, err := c.session.Ingest(sample, c.opts.Filter)
	if err != nil {
		c.log.Debug("sample dropped", "session_id", c.session.ID, "error", err)
		return err
	}
	c.batch.Add(point)
	return nil
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Points returns a copy of the track recorded so far.
func (c *Controller) Points() []domain.TrackPoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	return append([]domain.TrackPoint(nil), c.session.Points...)
}

// LocalDetail describes the current or last session from local state.
func (c *Controller) LocalDetail() (domain.SessionDetail, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	if s == nil || s.ID == "" {
		return domain.SessionDetail{}, false
	}
	now := c.clock.Now()
	stats := s.Stats(now, c.weightKg)
	active := stats.ActiveSeconds
	return domain.SessionDetail{
		Session: domain.RemoteSession{
			ID:             s.ID,
			StudentID:      s.StudentID,
			ActivityType:   s.ActivityType,
			Mode:           s.Mode,
			Status:         s.Status,
			StartedAt:      s.StartedAt,
			FinishedAt:     s.FinishedAt,
			DistanceMeters: stats.DistanceMeters,
			MaxSpeedKmh:    stats.MaxSpeedKmh,
			AvgSpeedKmh:    stats.AvgSpeedKmh,
			CaloriesBurned: stats.CaloriesBurned,
			ActiveSeconds:  &active,
			PointCount:     len(s.Points),
			Extras:         s.Extras,
		},
		Points: append([]domain.TrackPoint(nil), s.Points...),
	}, true
}

func (c *Controller) CheckRecovery(ctx context.Context, studentID string) (domain.RemoteSession, bool, error) {
	if c.recovery == nil {
		return domain.RemoteSession{}, false, nil
	}
	return c.recovery.Check(ctx, studentID)
}

func (c *Controller) ResolveRecovery(ctx context.Context, studentID, sessionID string, resolution domain.Resolution, weightKg float64) (RecoveryOutcome, error) {
	if c.recovery == nil {
		return RecoveryOutcome{}, apperrors.ErrNoInProgressSession
	}
	if weightKg <= 0 {
		weightKg = c.opts.ReferenceWeightKg
	}
	return c.recovery.Resolve(ctx, studentID, sessionID, resolution, weightKg)
}

// claimLocked returns the open session and marks the controller busy. Callers hold mu.
func (c *Controller) claimLocked() (*domain.Session, error) {
	if c.session == nil || c.session.Status == domain.StatusIdle || c.session.Status.Terminal() {
		return nil, apperrors.ErrNoActiveSession
	}
	if c.busy {
		return nil, apperrors.ErrSessionBusy
	}
	if !c.session.Status.Open() {
		return nil, fmt.Errorf("%w: session is %s", apperrors.ErrInvalidTransition, c.session.Status)
	}
	c.busy = true
	return c.session, nil
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Status:        domain.StatusIdle,
		FlushFailures: c.flushFailures,
		LastFlushAt:   c.lastFlushAt,
		PendingPoints: c.batch.Len(),
		Busy:          c.busy,
	}
	if c.lastFlushErr != nil {
		snap.LastFlushErr = c.lastFlushErr.Error()
	}
	s := c.session
	if s == nil {
		return snap
	}
	snap.SessionID = s.ID
	snap.StudentID = s.StudentID
	snap.ActivityType = s.ActivityType
	snap.Mode = s.Mode
	snap.Status = s.Status
	snap.StartedAt = s.StartedAt
	snap.Stats = s.Stats(c.clock.Now(), c.weightKg)
	snap.PointCount = len(s.Points)
	snap.Dropped = s.Dropped
	return snap
}

func (c *Controller) setBusy(v bool) {
	c.mu.Lock()
	c.busy = v
	c.mu.Unlock()
}

func (c *Controller) latestFix() *domain.Coordinate {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastFix == nil {
		return nil
	}
	fix := *c.lastFix
	return &fix
}

// cancelRemote is best effort; it reports whether the backend confirmed.
func (c *Controller) cancelRemote(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.BackendTimeout)
	defer cancel()
	if err := c.backend.Cancel(callCtx, id); err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			c.log.Warn("backend cancel failed", "session_id", id, "error", err)
		}
		return false
	}
	return true
}

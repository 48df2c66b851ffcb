package service_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"gymtrack/internal/modules/activity/domain"
	"gymtrack/internal/modules/activity/service"
	apperrors "gymtrack/internal/platform/errors"
)

func TestStartIngestFinishEndToEnd(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	src := h.startGPS(t)
	t0 := h.clock.Now()

	first := sample(origin, t0)
	first.SpeedMs = domain.Float(2.2)
	src <- first
	src <- sample(north(22), t0.Add(10*time.Second))
	waitFor(t, "pumped samples", func() bool { return h.ctrl.Snapshot().PointCount == 2 })
	h.clock.Advance(10 * time.Second)

	res, err := h.ctrl.Finish(context.Background(), domain.Extras{})
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if !res.Confirmed || res.Unsynced != 0 || h.backend.storedCount() != 2 {
		t.Fatalf("result=%+v stored=%d", res, h.backend.storedCount())
	}
	if math.Abs(res.Stats.DistanceMeters-22) > 0.01 || math.Abs(res.Stats.AvgSpeedKmh-7.92) > 0.01 {
		t.Fatalf("stats = %+v", res.Stats)
	}
	if len(h.backend.finishes) != 1 || h.backend.finishes[0].ActiveSeconds != 10 {
		t.Fatalf("finish requests = %+v", h.backend.finishes)
	}
	if got := h.ctrl.Snapshot().Status; got != domain.StatusFinished {
		t.Fatalf("status = %s", got)
	}
	if err := h.ctrl.Ingest(sample(north(50), t0.Add(20*time.Second))); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("late sample must be dropped, got %v", err)
	}
}

func TestRunOfThreeEquatorFixes(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	src := h.startGPS(t)
	t0 := h.clock.Now()

	src <- domain.Sample{Latitude: 0, Longitude: 0, Timestamp: t0}
	src <- domain.Sample{Latitude: 0, Longitude: 0.0001, Timestamp: t0.Add(5 * time.Second)}
	src <- domain.Sample{Latitude: 0, Longitude: 0.0002, Timestamp: t0.Add(10 * time.Second)}
	waitFor(t, "pumped samples", func() bool { return h.ctrl.Snapshot().PointCount == 3 })
	h.clock.Advance(10 * time.Second)

	res, err := h.ctrl.Finish(context.Background(), domain.Extras{})
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	// Each hop is about 11.12 m, so both pass the 2 m filter.
	if math.Abs(res.Stats.DistanceMeters-22.239) > 0.01 {
		t.Fatalf("distance = %f, want about 22", res.Stats.DistanceMeters)
	}
	if res.Stats.ActiveSeconds != 10 {
		t.Fatalf("active seconds = %f, want 10", res.Stats.ActiveSeconds)
	}
	if math.Abs(res.Stats.AvgSpeedKmh-8.006) > 0.01 {
		t.Fatalf("avg speed = %f, want about 7.9-8.0", res.Stats.AvgSpeedKmh)
	}
	if got := h.backend.storedCount(); got != 3 {
		t.Fatalf("stored = %d, want 3", got)
	}
}

func TestStartPassesLatestFixAsInitialPosition(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	_ = h.ctrl.Ingest(sample(origin, h.clock.Now()))
	h.startGPS(t)
	if len(h.backend.starts) != 1 || h.backend.starts[0].InitialPosition == nil || *h.backend.starts[0].InitialPosition != origin {
		t.Fatalf("start requests = %+v", h.backend.starts)
	}
}

func TestStartRejectedReturnsToIdle(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.backend.startErr = apperrors.ErrActiveSessionExists
	_, err := h.ctrl.Start(context.Background(), service.StartParams{StudentID: "student-1", ActivityType: domain.ActivityWalk, Mode: domain.ModeManual})
	if !errors.Is(err, apperrors.ErrActiveSessionExists) {
		t.Fatalf("expected rejection, got %v", err)
	}
	snap := h.ctrl.Snapshot()
	if snap.Status != domain.StatusIdle || snap.SessionID != "" || snap.Busy {
		t.Fatalf("snapshot after rejection = %+v", snap)
	}
}

func TestStartTimeoutReturnsToIdle(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(o *service.Options) { o.BackendTimeout = 20 * time.Millisecond })
	h.backend.startGate = newGate()
	_, err := h.ctrl.Start(context.Background(), service.StartParams{StudentID: "student-1", ActivityType: domain.ActivityWalk, Mode: domain.ModeManual})
	if apperrors.KindOf(err) != apperrors.KindNetwork {
		t.Fatalf("expected network kind, got %v", err)
	}
	if got := h.ctrl.Snapshot().Status; got != domain.StatusIdle {
		t.Fatalf("status = %s", got)
	}
}

func TestGeolocationFailureBlocksOnlyGPS(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	_, err := h.ctrl.Start(context.Background(), service.StartParams{
		StudentID: "student-1", ActivityType: domain.ActivityRun, Mode: domain.ModeGPS,
		Source: &fakeSource{err: apperrors.ErrGeolocationDenied},
	})
	if !errors.Is(err, apperrors.ErrGeolocationDenied) {
		t.Fatalf("expected denied, got %v", err)
	}
	if len(h.backend.starts) != 0 {
		t.Fatalf("backend must not be contacted")
	}
	snap := h.startManual(t)
	if snap.Status != domain.StatusActive {
		t.Fatalf("manual start status = %s", snap.Status)
	}
}

func TestStartRequiresRecovery(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.backend.inProgress = &domain.RemoteSession{ID: "stale-1", StudentID: "student-1", Status: domain.StatusActive}
	_, err := h.ctrl.Start(context.Background(), service.StartParams{StudentID: "student-1", ActivityType: domain.ActivityWalk, Mode: domain.ModeManual})
	var rr *domain.RecoveryRequiredError
	if !errors.As(err, &rr) || rr.Stale.ID != "stale-1" {
		t.Fatalf("expected recovery required, got %v", err)
	}
	if len(h.backend.starts) != 0 {
		t.Fatalf("start must not reach the backend")
	}
}

func TestSecondStartWhileActiveFails(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.startManual(t)
	_, err := h.ctrl.Start(context.Background(), service.StartParams{StudentID: "student-1", ActivityType: domain.ActivityWalk, Mode: domain.ModeManual})
	if !errors.Is(err, apperrors.ErrActiveSessionExists) {
		t.Fatalf("expected active session exists, got %v", err)
	}
}

func TestTransitionWhileBusyIsRejected(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.startManual(t)
	h.backend.pauseGate = newGate()

	done := make(chan error, 1)
	go func() {
		_, err := h.ctrl.Pause(context.Background())
		done <- err
	}()
	<-h.backend.pauseGate.entered

	if _, err := h.ctrl.Resume(context.Background()); !errors.Is(err, apperrors.ErrSessionBusy) {
		t.Fatalf("resume while pausing: %v", err)
	}
	if _, err := h.ctrl.Finish(context.Background(), domain.Extras{}); !errors.Is(err, apperrors.ErrSessionBusy) {
		t.Fatalf("finish while pausing: %v", err)
	}
	if _, err := h.ctrl.Cancel(context.Background()); !errors.Is(err, apperrors.ErrSessionBusy) {
		t.Fatalf("cancel while pausing: %v", err)
	}
	close(h.backend.pauseGate.release)
	if err := <-done; err != nil {
		t.Fatalf("pause: %v", err)
	}
	if got := h.ctrl.Snapshot().Status; got != domain.StatusPaused {
		t.Fatalf("status = %s", got)
	}
}

func TestPauseRollsBackOnBackendFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.startManual(t)
	h.backend.pauseErr = apperrors.ErrBackendUnavailable
	h.clock.Advance(30 * time.Second)
	snap, err := h.ctrl.Pause(context.Background())
	if !errors.Is(err, apperrors.ErrBackendUnavailable) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if snap.Status != domain.StatusActive {
		t.Fatalf("status after rollback = %s", snap.Status)
	}
	h.clock.Advance(30 * time.Second)
	if got := h.ctrl.Snapshot().Stats.ActiveSeconds; got != 60 {
		t.Fatalf("clock must keep running after rollback, active = %f", got)
	}
}

func TestSamplesDuringFailedPauseAreKept(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.startGPS(t)
	t0 := h.clock.Now()
	if err := h.ctrl.Ingest(sample(origin, t0)); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	h.backend.pauseGate = newGate()
	h.backend.pauseErr = apperrors.ErrBackendUnavailable

	done := make(chan error, 1)
	go func() {
		_, err := h.ctrl.Pause(context.Background())
		done <- err
	}()
	<-h.backend.pauseGate.entered
	if err := h.ctrl.Ingest(sample(north(30), t0.Add(5*time.Second))); err != nil {
		t.Fatalf("sample during pending pause: %v", err)
	}
	close(h.backend.pauseGate.release)
	if err := <-done; !errors.Is(err, apperrors.ErrBackendUnavailable) {
		t.Fatalf("expected backend error, got %v", err)
	}

	snap := h.ctrl.Snapshot()
	if snap.Status != domain.StatusActive || snap.PointCount != 2 || snap.Dropped != 0 {
		t.Fatalf("rolled back pause must keep the held sample: %+v", snap)
	}
	if math.Abs(snap.Stats.DistanceMeters-30) > 0.01 {
		t.Fatalf("distance = %f, want 30", snap.Stats.DistanceMeters)
	}
}

func TestSamplesDuringConfirmedPauseAreDropped(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.startGPS(t)
	t0 := h.clock.Now()
	h.backend.pauseGate = newGate()

	done := make(chan error, 1)
	go func() {
		_, err := h.ctrl.Pause(context.Background())
		done <- err
	}()
	<-h.backend.pauseGate.entered
	_ = h.ctrl.Ingest(sample(origin, t0.Add(time.Second)))
	close(h.backend.pauseGate.release)
	if err := <-done; err != nil {
		t.Fatalf("pause: %v", err)
	}
	snap := h.ctrl.Snapshot()
	if snap.Status != domain.StatusPaused || snap.PointCount != 0 || snap.Dropped != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestPauseResumeFreezesElapsed(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.startManual(t)
	h.clock.Advance(45 * time.Second)
	if _, err := h.ctrl.Pause(context.Background()); err != nil {
		t.Fatalf("pause: %v", err)
	}
	h.clock.Advance(10 * time.Minute)
	if got := h.ctrl.Snapshot().Stats.ActiveSeconds; got != 45 {
		t.Fatalf("paused active seconds = %f", got)
	}
	if _, err := h.ctrl.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	h.clock.Advance(60 * time.Second)
	if got := h.ctrl.Snapshot().Stats.ActiveSeconds; got != 105 {
		t.Fatalf("active seconds after 60s jump = %f", got)
	}
}

func TestCancelDuringStartingDiscardsResult(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.backend.nextID = "sess-9"
	h.backend.startGate = newGate()

	done := make(chan error, 1)
	go func() {
		_, err := h.ctrl.Start(context.Background(), service.StartParams{StudentID: "student-1", ActivityType: domain.ActivityWalk, Mode: domain.ModeManual})
		done <- err
	}()
	<-h.backend.startGate.entered

	res, err := h.ctrl.Cancel(context.Background())
	if err != nil {
		t.Fatalf("cancel while starting: %v", err)
	}
	if res.BackendConfirmed {
		t.Fatalf("nothing to confirm while starting")
	}
	close(h.backend.startGate.release)
	if err := <-done; !errors.Is(err, apperrors.ErrSessionCancelled) {
		t.Fatalf("start must report cancellation, got %v", err)
	}
	if len(h.backend.cancels) != 1 || h.backend.cancels[0] != "sess-9" {
		t.Fatalf("backend cancels = %v", h.backend.cancels)
	}
	snap := h.ctrl.Snapshot()
	if snap.Status != domain.StatusCancelled || snap.Busy {
		t.Fatalf("snapshot = %+v", snap)
	}
	h.startManual(t)
}

func TestCancelIsBestEffort(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.startManual(t)
	h.backend.cancelErr = apperrors.ErrBackendUnavailable
	res, err := h.ctrl.Cancel(context.Background())
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.BackendConfirmed || res.SessionID != "sess-1" {
		t.Fatalf("result = %+v", res)
	}
	if got := h.ctrl.Snapshot().Status; got != domain.StatusCancelled {
		t.Fatalf("status = %s", got)
	}
	if _, err := h.ctrl.Pause(context.Background()); !errors.Is(err, apperrors.ErrNoActiveSession) {
		t.Fatalf("pause after cancel: %v", err)
	}
}

func TestFinishTimeoutAfterFullSyncClosesLocally(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.startGPS(t)
	_ = h.ctrl.Ingest(sample(origin, h.clock.Now()))
	h.backend.finishErr = context.DeadlineExceeded

	res, err := h.ctrl.Finish(context.Background(), domain.Extras{})
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if res.Confirmed {
		t.Fatalf("finish must be unconfirmed")
	}
	if got := h.ctrl.Snapshot().Status; got != domain.StatusFinished {
		t.Fatalf("status = %s", got)
	}
}

func TestFinishFailureWithUnsyncedPointsRollsBack(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.startGPS(t)
	_ = h.ctrl.Ingest(sample(origin, h.clock.Now()))
	h.backend.batchErrs = []error{apperrors.ErrBackendUnavailable}
	h.backend.finishErr = apperrors.ErrBackendUnavailable

	if _, err := h.ctrl.Finish(context.Background(), domain.Extras{}); apperrors.KindOf(err) != apperrors.KindNetwork {
		t.Fatalf("expected network failure, got %v", err)
	}
	snap := h.ctrl.Snapshot()
	if snap.Status != domain.StatusActive || snap.PendingPoints != 1 || snap.FlushFailures != 1 {
		t.Fatalf("snapshot after rollback = %+v", snap)
	}
}

func TestFinishRejectedFromPausedRestoresPaused(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.startManual(t)
	if _, err := h.ctrl.Pause(context.Background()); err != nil {
		t.Fatalf("pause: %v", err)
	}
	h.backend.finishErr = apperrors.ErrBackendRejected
	if _, err := h.ctrl.Finish(context.Background(), domain.Extras{}); !errors.Is(err, apperrors.ErrBackendRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if got := h.ctrl.Snapshot().Status; got != domain.StatusPaused {
		t.Fatalf("status = %s", got)
	}
}

func TestFinishValidatesExtras(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.startManual(t)
	if _, err := h.ctrl.Finish(context.Background(), domain.Extras{Floors: 4}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	res, err := h.ctrl.Finish(context.Background(), domain.Extras{ManualDistanceMeters: 3000, InclinePercent: 1.5})
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if res.Stats.DistanceMeters != 3000 || h.backend.finishes[0].Extras.InclinePercent != 1.5 {
		t.Fatalf("result = %+v", res)
	}
}

package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"gymtrack/internal/modules/activity/domain"
	"gymtrack/internal/modules/activity/service"
	apperrors "gymtrack/internal/platform/errors"
)

func ingestN(t *testing.T, h *harness, n int) {
	t.Helper()
	base := h.clock.Now()
	for i := 0; i < n; i++ {
		if err := h.ctrl.Ingest(sample(north(float64(i)*5), base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}
}

func TestTickFlushesPendingPoints(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.startGPS(t)
	ingestN(t, h, 3)

	h.ticks <- h.clock.Now()
	waitFor(t, "tick flush", func() bool { return h.backend.storedCount() == 3 })
	waitFor(t, "ack", func() bool { return h.ctrl.Snapshot().PendingPoints == 0 })
}

func TestFlushFailureRetainsAndRetryIsIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.startGPS(t)
	ingestN(t, h, 4)
	h.backend.batchErrs = []error{apperrors.ErrBackendUnavailable}

	if _, err := h.ctrl.FlushNow(context.Background()); !errors.Is(err, apperrors.ErrBackendUnavailable) {
		t.Fatalf("expected flush failure, got %v", err)
	}
	snap := h.ctrl.Snapshot()
	if snap.PendingPoints != 4 || snap.FlushFailures != 1 || snap.LastFlushErr == "" {
		t.Fatalf("snapshot after failure = %+v", snap)
	}
	if snap.Status != domain.StatusActive {
		t.Fatalf("flush failure must not affect the session, status = %s", snap.Status)
	}

	_ = h.ctrl.Ingest(sample(north(100), h.clock.Now().Add(time.Minute)))
	sent, err := h.ctrl.FlushNow(context.Background())
	if err != nil || sent != 5 {
		t.Fatalf("retry sent=%d err=%v", sent, err)
	}
	// A second delivery of the same points must not duplicate them.
	if err := h.backend.AddPointsBatch(context.Background(), "sess-1", h.ctrl.Points()); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if got := h.backend.storedCount(); got != 5 {
		t.Fatalf("stored = %d, want 5", got)
	}
	if snap := h.ctrl.Snapshot(); snap.PendingPoints != 0 || snap.LastFlushErr != "" {
		t.Fatalf("snapshot after retry = %+v", snap)
	}
}

func TestFlushSendsChronologicalChunks(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(o *service.Options) { o.MaxBatchPoints = 2 })
	h.startGPS(t)
	ingestN(t, h, 5)

	sent, err := h.ctrl.FlushNow(context.Background())
	if err != nil || sent != 5 {
		t.Fatalf("flush sent=%d err=%v", sent, err)
	}
	if len(h.backend.batches) != 3 {
		t.Fatalf("batches = %d, want 3", len(h.backend.batches))
	}
	var last time.Time
	for _, b := range h.backend.batches {
		if len(b) > 2 {
			t.Fatalf("batch of %d exceeds limit", len(b))
		}
		for _, p := range b {
			if p.Timestamp.Before(last) {
				t.Fatalf("points out of order")
			}
			last = p.Timestamp
		}
	}
}

func TestPartialChunkFailureKeepsUnsentTail(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(o *service.Options) { o.MaxBatchPoints = 2 })
	h.startGPS(t)
	ingestN(t, h, 5)
	h.backend.batchErrs = []error{nil, apperrors.ErrBackendUnavailable}

	sent, err := h.ctrl.FlushNow(context.Background())
	if err == nil || sent != 2 {
		t.Fatalf("flush sent=%d err=%v", sent, err)
	}
	if got := h.ctrl.Snapshot().PendingPoints; got != 3 {
		t.Fatalf("pending = %d, want 3", got)
	}
}

func TestPauseKicksFlushAndTicksSkipPaused(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.startGPS(t)
	ingestN(t, h, 2)

	if _, err := h.ctrl.Pause(context.Background()); err != nil {
		t.Fatalf("pause: %v", err)
	}
	waitFor(t, "pause flush", func() bool { return h.backend.storedCount() == 2 })

	h.backend.mu.Lock()
	before := len(h.backend.batches)
	h.backend.mu.Unlock()
	h.ticks <- h.clock.Now()
	h.ticks <- h.clock.Now()
	h.backend.mu.Lock()
	after := len(h.backend.batches)
	h.backend.mu.Unlock()
	if after != before {
		t.Fatalf("ticks must not flush while paused")
	}
}

func TestFinishWaitsForInFlightFlush(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.startGPS(t)
	ingestN(t, h, 3)
	g := newGate()
	h.backend.mu.Lock()
	h.backend.batchGate = g
	h.backend.mu.Unlock()

	h.ticks <- h.clock.Now()
	<-g.entered

	done := make(chan service.FinishResult, 1)
	go func() {
		res, err := h.ctrl.Finish(context.Background(), domain.Extras{})
		if err != nil {
			t.Errorf("finish: %v", err)
		}
		done <- res
	}()
	waitFor(t, "finishing", func() bool { return h.ctrl.Snapshot().Status == domain.StatusFinishing })
	for _, call := range h.backend.callLog() {
		if call == "finish" {
			t.Fatalf("finish reached the backend before the in-flight flush completed")
		}
	}
	h.backend.mu.Lock()
	h.backend.batchGate = nil
	h.backend.mu.Unlock()
	close(g.release)

	res := <-done
	if !res.Confirmed || res.Unsynced != 0 {
		t.Fatalf("result = %+v", res)
	}
	calls := h.backend.callLog()
	if calls[0] != "batch" || calls[len(calls)-1] != "finish" {
		t.Fatalf("call order = %v", calls)
	}
	if h.backend.storedCount() != 3 {
		t.Fatalf("stored = %d", h.backend.storedCount())
	}
}

// Points that never reached the backend live only in memory; losing the process loses them.
func TestUnflushedPointsAreTheOnlyLossWindow(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.startGPS(t)
	ingestN(t, h, 3)
	h.backend.batchErrs = []error{apperrors.ErrBackendUnavailable, apperrors.ErrBackendUnavailable}
	_, _ = h.ctrl.FlushNow(context.Background())
	_, _ = h.ctrl.FlushNow(context.Background())

	if got := h.ctrl.Snapshot().PendingPoints; got != 3 {
		t.Fatalf("pending = %d", got)
	}
	if _, err := h.ctrl.Cancel(context.Background()); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if h.backend.storedCount() != 0 || h.ctrl.Snapshot().PendingPoints != 0 {
		t.Fatalf("cancelled session must leave nothing behind")
	}
}

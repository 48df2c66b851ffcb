package service_test

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"gymtrack/internal/modules/activity/domain"
	activityout "gymtrack/internal/modules/activity/port/out"
	"gymtrack/internal/modules/activity/service"
	"gymtrack/internal/platform/clock"
	apperrors "gymtrack/internal/platform/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type fakeTicker struct {
	ch chan time.Time
}

func (f fakeTicker) C() <-chan time.Time { return f.ch }
func (f fakeTicker) Stop()               {}

// gate blocks a fake call until released and reports when a call is waiting on it.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}, 8), release: make(chan struct{})}
}

func (g *gate) wait(ctx context.Context) error {
	if g == nil {
		return nil
	}
	g.entered <- struct{}{}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakeBackend struct {
	mu         sync.Mutex
	nextID     string
	startErr   error
	startGate  *gate
	batchErrs  []error
	batchGate  *gate
	pauseErr   error
	pauseGate  *gate
	resumeErr  error
	finishErr  error
	cancelErr  error
	inProgress *domain.RemoteSession
	detail     domain.SessionDetail

	starts   []activityout.StartRequest
	batches  [][]domain.TrackPoint
	stored   map[string]domain.TrackPoint
	finishes []activityout.FinishRequest
	cancels  []string
	calls    []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{nextID: "sess-1", stored: map[string]domain.TrackPoint{}}
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeBackend) Start(ctx context.Context, req activityout.StartRequest) (activityout.StartResult, error) {
	f.mu.Lock()
	f.starts = append(f.starts, req)
	g := f.startGate
	f.mu.Unlock()
	if err := g.wait(ctx); err != nil {
		return activityout.StartResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return activityout.StartResult{}, f.startErr
	}
	return activityout.StartResult{SessionID: f.nextID, StartedAt: time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)}, nil
}

func (f *fakeBackend) AddPointsBatch(ctx context.Context, _ string, points []domain.TrackPoint) error {
	f.mu.Lock()
	g := f.batchGate
	f.mu.Unlock()
	if err := g.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "batch")
	if len(f.batchErrs) > 0 {
		err := f.batchErrs[0]
		f.batchErrs = f.batchErrs[1:]
		if err != nil {
			return err
		}
	}
	f.batches = append(f.batches, append([]domain.TrackPoint(nil), points...))
	for _, p := range points {
		f.stored[fmt.Sprintf("%d|%f|%f", p.Timestamp.UnixNano(), p.Latitude, p.Longitude)] = p
	}
	return nil
}

func (f *fakeBackend) Pause(ctx context.Context, _ string) error {
	f.mu.Lock()
	g := f.pauseGate
	f.mu.Unlock()
	if err := g.wait(ctx); err != nil {
		return err
	}
	f.record("pause")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pauseErr
}

func (f *fakeBackend) Resume(context.Context, string) error {
	f.record("resume")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resumeErr
}

func (f *fakeBackend) Finish(_ context.Context, req activityout.FinishRequest) error {
	f.record("finish")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finishErr != nil {
		return f.finishErr
	}
	f.finishes = append(f.finishes, req)
	if f.inProgress != nil && f.inProgress.ID == req.SessionID {
		f.inProgress = nil
	}
	return nil
}

func (f *fakeBackend) Cancel(_ context.Context, id string) error {
	f.record("cancel")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancels = append(f.cancels, id)
	if f.inProgress != nil && f.inProgress.ID == id {
		f.inProgress = nil
	}
	return nil
}

func (f *fakeBackend) GetInProgress(context.Context, string) (domain.RemoteSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inProgress == nil {
		return domain.RemoteSession{}, apperrors.ErrNoInProgressSession
	}
	return *f.inProgress, nil
}

func (f *fakeBackend) GetDetail(context.Context, string) (domain.SessionDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detail, nil
}

func (f *fakeBackend) storedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stored)
}

func (f *fakeBackend) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeSource struct {
	ch  chan domain.Sample
	err error
}

func (f *fakeSource) Open(context.Context) (<-chan domain.Sample, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ch, nil
}

type harness struct {
	ctrl    *service.Controller
	backend *fakeBackend
	clock   *fakeClock
	ticks   chan time.Time
}

func newHarness(t *testing.T, mutate func(*service.Options)) *harness {
	t.Helper()
	h := &harness{backend: newFakeBackend(), clock: newFakeClock(), ticks: make(chan time.Time)}
	opts := service.DefaultOptions()
	opts.BackendTimeout = 2 * time.Second
	opts.NewTicker = func(time.Duration) clock.Ticker { return fakeTicker{ch: h.ticks} }
	if mutate != nil {
		mutate(&opts)
	}
	recovery := service.NewRecoveryManager(h.backend, h.clock, 2*time.Hour, opts.BackendTimeout, nil)
	h.ctrl = service.NewController(h.backend, h.clock, recovery, opts)
	return h
}

func (h *harness) startManual(t *testing.T) service.Snapshot {
	t.Helper()
	snap, err := h.ctrl.Start(context.Background(), service.StartParams{StudentID: "student-1", ActivityType: domain.ActivityTreadmill, Mode: domain.ModeManual})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return snap
}

// startGPS starts a run whose source is fed by the returned channel.
func (h *harness) startGPS(t *testing.T) chan domain.Sample {
	t.Helper()
	ch := make(chan domain.Sample, 16)
	_, err := h.ctrl.Start(context.Background(), service.StartParams{StudentID: "student-1", ActivityType: domain.ActivityRun, Mode: domain.ModeGPS, Source: &fakeSource{ch: ch}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _, _ = h.ctrl.Cancel(context.Background()) })
	return ch
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

var origin = domain.Coordinate{Latitude: -23.5505, Longitude: -46.6333}

func north(m float64) domain.Coordinate {
	return domain.Coordinate{Latitude: origin.Latitude + m/domain.EarthRadiusMeters*180/math.Pi, Longitude: origin.Longitude}
}

func sample(c domain.Coordinate, ts time.Time) domain.Sample {
	return domain.Sample{Latitude: c.Latitude, Longitude: c.Longitude, Timestamp: ts}
}

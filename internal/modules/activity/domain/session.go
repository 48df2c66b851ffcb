package domain

import (
	"fmt"
	"time"

	apperrors "gymtrack/internal/platform/errors"
)

// Session is the client-side aggregate for one tracked activity. It is not safe for
// concurrent use; the controller serializes access.
type Session struct {
	ID             string
	StudentID      string
	ActivityType   ActivityType
	Mode           TrackingMode
	Status         Status
	StartedAt      time.Time
	FinishedAt     time.Time
	DistanceMeters float64
	MaxSpeedKmh    float64
	Points         []TrackPoint
	Elapsed        ElapsedClock
	Extras         Extras
	Dropped        int

	anchor *Coordinate
}

// Checkpoint is the part of a session a failed transition must roll back.
type Checkpoint struct {
	status  Status
	elapsed ElapsedClock
}

func NewSession(studentID string, t ActivityType, mode TrackingMode) (*Session, error) {
	if studentID == "" {
		return nil, fmt.Errorf("%w: student id is required", apperrors.ErrInvalidInput)
	}
	if err := ValidateMode(t, mode); err != nil {
		return nil, err
	}
	return &Session{StudentID: studentID, ActivityType: t, Mode: mode, Status: StatusIdle}, nil
}

func (s *Session) apply(ev Event) error {
	next, err := Next(s.Status, ev)
	if err != nil {
		return err
	}
	s.Status = next
	return nil
}

func (s *Session) Begin() error {
	return s.apply(EventStart)
}

// Confirm records the backend-assigned identity and starts the clock at now.
func (s *Session) Confirm(id string, startedAt, now time.Time) error {
	if id == "" {
		return fmt.Errorf("%w: backend returned an empty session id", apperrors.ErrBackendRejected)
	}
	if err := s.apply(EventConfirm); err != nil {
		return err
	}
	s.ID = id
	s.StartedAt = startedAt.UTC()
	s.Elapsed = ElapsedClock{}
	s.Elapsed.Start(now)
	s.anchor = nil
	return nil
}

func (s *Session) Reject() error {
	return s.apply(EventReject)
}

// Ingest appends a sample to the track. Samples outside Active, invalid samples and
// samples older than the last point are dropped and counted.
func (s *Session) Ingest(sample Sample, filter NoiseFilter) (TrackPoint, error) {
	if s.Status != StatusActive {
		s.Dropped++
		return TrackPoint{}, fmt.Errorf("%w: sample while %s", apperrors.ErrInvalidTransition, s.Status)
	}
	if err := sample.Validate(); err != nil {
		s.Dropped++
		return TrackPoint{}, err
	}
	point := sample.Point()
	if n := len(s.Points); n > 0 && point.Timestamp.Before(s.Points[n-1].Timestamp) {
		s.Dropped++
		return TrackPoint{}, fmt.Errorf("%w: sample at %s is older than the last point", apperrors.ErrInvalidInput, point.Timestamp.Format(time.RFC3339))
	}

	s.Points = append(s.Points, point)
	if kmh, ok := point.SpeedKmh(); ok && kmh > s.MaxSpeedKmh {
		s.MaxSpeedKmh = kmh
	}
	c := point.Coordinate()
	if s.anchor == nil {
		s.anchor = &c
		return point, nil
	}
	if d, ok := filter.Accept(*s.anchor, c); ok {
		s.DistanceMeters += d
		s.anchor = &c
	}
	return point, nil
}

func (s *Session) Pause(now time.Time) error {
	if err := s.apply(EventPause); err != nil {
		return err
	}
	s.Elapsed.Pause(now)
	return nil
}

// Resume re-anchors the clock so the paused gap adds no active time. The distance anchor is
// kept: DistanceMeters always equals NoiseFilter.Accumulate over Points, so the hop from the
// last point before the pause to the first one after it counts like any other pair.
func (s *Session) Resume(now time.Time) error {
	if err := s.apply(EventResume); err != nil {
		return err
	}
	s.Elapsed.Resume(now)
	return nil
}

// BeginFinish moves to Finishing and freezes the clock.
func (s *Session) BeginFinish(now time.Time) error {
	if err := s.apply(EventFinish); err != nil {
		return err
	}
	s.Elapsed.Pause(now)
	return nil
}

func (s *Session) Complete(now time.Time) error {
	if err := s.apply(EventConfirm); err != nil {
		return err
	}
	s.FinishedAt = now.UTC()
	return nil
}

func (s *Session) Cancel() error {
	return s.apply(EventCancel)
}

func (s *Session) Checkpoint() Checkpoint {
	return Checkpoint{status: s.Status, elapsed: s.Elapsed}
}

func (s *Session) Restore(cp Checkpoint) {
	s.Status = cp.status
	s.Elapsed = cp.elapsed
}

func (s *Session) LastPoint() (TrackPoint, bool) {
	if len(s.Points) == 0 {
		return TrackPoint{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// Distance is the tracked distance, or the entered one for manual sessions.
func (s *Session) Distance() float64 {
	if s.Mode == ModeManual && s.Extras.ManualDistanceMeters > 0 {
		return s.Extras.ManualDistanceMeters
	}
	return s.DistanceMeters
}

func (s *Session) Stats(now time.Time, weightKg float64) Stats {
	return ComputeStats(s.ActivityType, s.Distance(), s.Elapsed.Elapsed(now), s.MaxSpeedKmh, weightKg)
}

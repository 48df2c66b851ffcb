package domain

import (
	"fmt"
	"time"

	apperrors "gymtrack/internal/platform/errors"
)

// Sample is one raw fix delivered by a geolocation source.
type Sample struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters *float64  `json:"accuracy_m,omitempty"`
	SpeedMs        *float64  `json:"speed_ms,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

func (s Sample) Validate() error {
	if err := (Coordinate{Latitude: s.Latitude, Longitude: s.Longitude}).Validate(); err != nil {
		return err
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("%w: sample timestamp is required", apperrors.ErrInvalidInput)
	}
	return nil
}

// TrackPoint is an immutable, session-owned copy of an ingested sample.
type TrackPoint struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Timestamp      time.Time `json:"timestamp"`
	SpeedMs        *float64  `json:"speed_ms,omitempty"`
	AccuracyMeters *float64  `json:"accuracy_m,omitempty"`
}

func (s Sample) Point() TrackPoint {
	return TrackPoint{
		Latitude:       s.Latitude,
		Longitude:      s.Longitude,
		Timestamp:      s.Timestamp.UTC(),
		SpeedMs:        copyFloat(s.SpeedMs),
		AccuracyMeters: copyFloat(s.AccuracyMeters),
	}
}

func (p TrackPoint) Coordinate() Coordinate {
	return Coordinate{Latitude: p.Latitude, Longitude: p.Longitude}
}

// SpeedKmh converts the sample speed; negative speeds are device "unknown" markers.
func (p TrackPoint) SpeedKmh() (float64, bool) {
	if p.SpeedMs == nil || *p.SpeedMs < 0 {
		return 0, false
	}
	return *p.SpeedMs * 3.6, true
}

func Float(v float64) *float64 {
	return &v
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

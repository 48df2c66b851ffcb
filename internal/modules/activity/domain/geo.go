package domain

import (
	"fmt"
	"math"

	apperrors "gymtrack/internal/platform/errors"
)

const (
	EarthRadiusMeters        = 6371000.0
	DefaultMinMovementMeters = 2.0
)

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (c Coordinate) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) || c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: coordinate out of range (%f, %f)", apperrors.ErrInvalidInput, c.Latitude, c.Longitude)
	}
	return nil
}

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b Coordinate) float64 {
	if a == b {
		return 0
	}
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// NoiseFilter drops position deltas too small to be real movement.
type NoiseFilter struct {
	MinMovementMeters float64
}

func DefaultNoiseFilter() NoiseFilter {
	return NoiseFilter{MinMovementMeters: DefaultMinMovementMeters}
}

// Accept returns the distance from anchor to next and whether it counts towards the total.
func (f NoiseFilter) Accept(anchor, next Coordinate) (float64, bool) {
	d := Haversine(anchor, next)
	return d, d > f.MinMovementMeters
}

// Accumulate replays points through the filter exactly as Session.Ingest does, pauses
// included, and returns the accepted distance and the max sample speed in km/h.
func (f NoiseFilter) Accumulate(points []TrackPoint) (distanceMeters, maxSpeedKmh float64) {
	var anchor *Coordinate
	for _, p := range points {
		if kmh, ok := p.SpeedKmh(); ok && kmh > maxSpeedKmh {
			maxSpeedKmh = kmh
		}
		c := p.Coordinate()
		if anchor == nil {
			anchor = &c
			continue
		}
		if d, ok := f.Accept(*anchor, c); ok {
			distanceMeters += d
			anchor = &c
		}
	}
	return distanceMeters, maxSpeedKmh
}

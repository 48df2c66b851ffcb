package domain

import (
	"fmt"
	"math"
	"time"
)

const DefaultReferenceWeightKg = 70.0

// Stats is the aggregate view of a session at one instant.
type Stats struct {
	DistanceMeters float64
	ActiveSeconds  float64
	AvgSpeedKmh    float64
	MaxSpeedKmh    float64
	Pace           time.Duration
	PaceKnown      bool
	CaloriesBurned float64
}

// PaceLabel renders pace as mm:ss per km, or "--:--" when undefined.
func (s Stats) PaceLabel() string {
	if !s.PaceKnown {
		return "--:--"
	}
	return FormatPace(s.Pace)
}

func ComputeStats(t ActivityType, distanceMeters float64, active time.Duration, maxSpeedKmh, weightKg float64) Stats {
	seconds := active.Seconds()
	pace, ok := Pace(distanceMeters, seconds)
	return Stats{
		DistanceMeters: distanceMeters,
		ActiveSeconds:  seconds,
		AvgSpeedKmh:    AverageSpeedKmh(distanceMeters, seconds),
		MaxSpeedKmh:    maxSpeedKmh,
		Pace:           pace,
		PaceKnown:      ok,
		CaloriesBurned: Calories(t.MET(), weightKg, seconds/60),
	}
}

func AverageSpeedKmh(distanceMeters, seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return (distanceMeters / 1000) / (seconds / 3600)
}

// Pace is the time per kilometre. It is undefined for zero distance.
func Pace(distanceMeters, seconds float64) (time.Duration, bool) {
	if distanceMeters <= 0 || seconds < 0 {
		return 0, false
	}
	perKm := seconds / (distanceMeters / 1000)
	if math.IsInf(perKm, 0) || math.IsNaN(perKm) {
		return 0, false
	}
	return time.Duration(perKm * float64(time.Second)), true
}

func FormatPace(d time.Duration) string {
	total := int64(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// Calories estimates energy use as MET * 3.5 * weight / 200 per minute. A non-positive
// weight falls back to DefaultReferenceWeightKg.
func Calories(met, weightKg, minutes float64) float64 {
	if minutes <= 0 || met <= 0 {
		return 0
	}
	if weightKg <= 0 {
		weightKg = DefaultReferenceWeightKg
	}
	return met * 3.5 * weightKg / 200 * minutes
}

// Split is one completed kilometre of a track.
type Split struct {
	Index    int
	Duration time.Duration
}

// Splits walks points with the filter and reports the time taken for each full kilometre.
func (f NoiseFilter) Splits(points []TrackPoint) []Split {
	var (
		out       []Split
		anchor    *TrackPoint
		covered   float64
		splitFrom time.Time
	)
	for i := range points {
		p := points[i]
		if anchor == nil {
			anchor = &points[i]
			splitFrom = p.Timestamp
			continue
		}
		d, ok := f.Accept(anchor.Coordinate(), p.Coordinate())
		if !ok {
			continue
		}
		covered += d
		anchor = &points[i]
		for covered >= 1000 {
			out = append(out, Split{Index: len(out) + 1, Duration: p.Timestamp.Sub(splitFrom)})
			splitFrom = p.Timestamp
			covered -= 1000
		}
	}
	return out
}

package out

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gymtrack/internal/modules/activity/domain"
	"gymtrack/internal/platform/clock"
	apperrors "gymtrack/internal/platform/errors"
	"gymtrack/internal/platform/logging"
)

type gpxDocument struct {
	Tracks []struct {
		Segments []struct {
			Points []gpxPoint `xml:"trkpt"`
		} `xml:"trkseg"`
	} `xml:"trk"`
}

type gpxPoint struct {
	Lat  float64   `xml:"lat,attr"`
	Lon  float64   `xml:"lon,attr"`
	Time time.Time `xml:"time"`
}

// GPXReplaySource replays a recorded track as if it were happening now. Gaps between fixes
// are divided by Speedup and timestamps are re-based on the clock at open time.
type GPXReplaySource struct {
	Path    string
	Speedup float64
	Clock   clock.Clock
	// Sleep waits between fixes; nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	Log   *slog.Logger
}

func (s *GPXReplaySource) Open(ctx context.Context) (<-chan domain.Sample, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: open gpx %s: %v", apperrors.ErrGeolocationUnavailable, s.Path, err)
	}
	defer f.Close()
	points, err := ParseGPX(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrGeolocationUnavailable, err)
	}
	speedup := s.Speedup
	if speedup <= 0 {
		speedup = 1
	}
	sleep := s.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	clk := s.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	log := logging.OrDiscard(s.Log)

	out := make(chan domain.Sample, 16)
	go func() {
		defer close(out)
		base := clk.Now()
		for i, p := range points {
			offset := time.Duration(float64(p.Timestamp.Sub(points[0].Timestamp)) / speedup)
			sample := domain.Sample{Latitude: p.Latitude, Longitude: p.Longitude, Timestamp: base.Add(offset)}
			if i > 0 {
				prev := points[i-1]
				gap := time.Duration(float64(p.Timestamp.Sub(prev.Timestamp)) / speedup)
				if err := sleep(ctx, gap); err != nil {
					return
				}
				if gap > 0 {
					sample.SpeedMs = domain.Float(domain.Haversine(prev.Coordinate(), p.Coordinate()) / gap.Seconds())
				}
			}
			select {
			case out <- sample:
			case <-ctx.Done():
				return
			}
		}
		log.Debug("gpx replay finished", "path", s.Path, "points", len(points))
	}()
	return out, nil
}

// ParseGPX returns the track points of every segment in document order. Points without a
// time are rejected since replay needs the original pacing.
func ParseGPX(r io.Reader) ([]domain.TrackPoint, error) {
	var doc gpxDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode gpx: %w", err)
	}
	var points []domain.TrackPoint
	for _, trk := range doc.Tracks {
		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				if p.Time.IsZero() {
					return nil, fmt.Errorf("gpx point %f,%f has no time", p.Lat, p.Lon)
				}
				points = append(points, domain.TrackPoint{Latitude: p.Lat, Longitude: p.Lon, Timestamp: p.Time.UTC()})
			}
		}
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("gpx has no track points")
	}
	return points, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

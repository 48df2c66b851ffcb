package out

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	"go.bug.st/serial"

	"gymtrack/internal/modules/activity/domain"
	"gymtrack/internal/platform/clock"
	apperrors "gymtrack/internal/platform/errors"
	"gymtrack/internal/platform/logging"
)

const (
	DefaultNMEABaud = 9600
	knotsToMs       = 0.514444
	// hdopMeters converts horizontal dilution of precision to an approximate accuracy radius.
	hdopMeters = 5.0
)

// PortOpener opens a serial device; tests replace it with an in-memory stream.
type PortOpener func(name string, mode *serial.Mode) (io.ReadCloser, error)

func openSerial(name string, mode *serial.Mode) (io.ReadCloser, error) {
	return serial.Open(name, mode)
}

// NMEASource reads fixes from an NMEA-0183 GPS receiver. RMC sentences carry the position
// and speed; the latest GGA supplies HDOP for the accuracy estimate.
type NMEASource struct {
	Port   string
	Baud   int
	Opener PortOpener
	Clock  clock.Clock
	Log    *slog.Logger
}

func (s *NMEASource) Open(ctx context.Context) (<-chan domain.Sample, error) {
	baud := s.Baud
	if baud <= 0 {
		baud = DefaultNMEABaud
	}
	opener := s.Opener
	if opener == nil {
		opener = openSerial
	}
	port, err := opener(s.Port, &serial.Mode{BaudRate: baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit})
	if err != nil {
		return nil, classifyPortError(s.Port, err)
	}
	clk := s.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	log := logging.OrDiscard(s.Log)

	out := make(chan domain.Sample, 16)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = port.Close()
	}()
	go func() {
		defer close(out)
		defer close(done)
		d := nmeaDecoder{clock: clk}
		scanner := bufio.NewScanner(port)
		for scanner.Scan() {
			sample, ok, err := d.decode(scanner.Text())
			if err != nil {
				log.Debug("nmea sentence skipped", "port", s.Port, "error", err)
				continue
			}
			if !ok {
				continue
			}
			select {
			case out <- sample:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			log.Warn("gps receiver read failed", "port", s.Port, "error", err)
		}
	}()
	return out, nil
}

func classifyPortError(name string, err error) error {
	var coded interface{ Code() serial.PortErrorCode }
	if errors.As(err, &coded) && coded.Code() == serial.PermissionDenied {
		return fmt.Errorf("%w: %s: %v", apperrors.ErrGeolocationDenied, name, err)
	}
	return fmt.Errorf("%w: %s: %v", apperrors.ErrGeolocationUnavailable, name, err)
}

type nmeaDecoder struct {
	clock    clock.Clock
	accuracy *float64
}

// decode returns a sample for every valid RMC fix. Other sentences only update state.
func (d *nmeaDecoder) decode(line string) (domain.Sample, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return domain.Sample{}, false, nil
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		return domain.Sample{}, false, err
	}
	switch m := sentence.(type) {
	case nmea.GGA:
		if m.FixQuality != nmea.Invalid && m.HDOP > 0 {
			d.accuracy = domain.Float(m.HDOP * hdopMeters)
		}
	case nmea.RMC:
		if m.Validity != nmea.ValidRMC {
			return domain.Sample{}, false, nil
		}
		sample := domain.Sample{
			Latitude:  m.Latitude,
			Longitude: m.Longitude,
			SpeedMs:   domain.Float(m.Speed * knotsToMs),
			Timestamp: fixTime(m.Date, m.Time, d.clock),
		}
		if d.accuracy != nil {
			sample.AccuracyMeters = domain.Float(*d.accuracy)
		}
		return sample, true, nil
	}
	return domain.Sample{}, false, nil
}

func fixTime(date nmea.Date, t nmea.Time, clk clock.Clock) time.Time {
	if !date.Valid || !t.Valid {
		return clk.Now()
	}
	return time.Date(2000+date.YY, time.Month(date.MM), date.DD, t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC)
}

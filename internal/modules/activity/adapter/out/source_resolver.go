package out

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	activityout "gymtrack/internal/modules/activity/port/out"
	"gymtrack/internal/platform/clock"
	apperrors "gymtrack/internal/platform/errors"
)

// SourceResolver maps locators to geo sources:
//
//	gpx:<file>     replay a GPX track
//	nmea:<device>  read a serial GPS receiver
//	jsonl:<file>   JSON-lines samples, "-" or "stdin" for standard input
type SourceResolver struct {
	GPXSpeedup float64
	NMEABaud   int
	Stdin      io.Reader
	Clock      clock.Clock
	Log        *slog.Logger
}

func (r SourceResolver) Resolve(locator string) (activityout.GeoSource, error) {
	if locator == "stdin" || locator == "-" {
		return &JSONLineSource{Reader: r.stdin(), Clock: r.Clock, Log: r.Log}, nil
	}
	kind, target, ok := strings.Cut(locator, ":")
	if !ok || target == "" {
		return nil, fmt.Errorf("%w: position source %q must look like kind:target", apperrors.ErrInvalidInput, locator)
	}
	switch kind {
	case "gpx":
		return &GPXReplaySource{Path: target, Speedup: r.GPXSpeedup, Clock: r.Clock, Log: r.Log}, nil
	case "nmea":
		return &NMEASource{Port: target, Baud: r.NMEABaud, Clock: r.Clock, Log: r.Log}, nil
	case "jsonl":
		if target == "-" || target == "stdin" {
			return &JSONLineSource{Reader: r.stdin(), Clock: r.Clock, Log: r.Log}, nil
		}
		f, err := os.Open(target)
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", apperrors.ErrGeolocationUnavailable, target, err)
		}
		return &JSONLineSource{Reader: f, Clock: r.Clock, Log: r.Log, closer: f}, nil
	default:
		return nil, fmt.Errorf("%w: unknown position source kind %q", apperrors.ErrInvalidInput, kind)
	}
}

func (r SourceResolver) stdin() io.Reader {
	if r.Stdin != nil {
		return r.Stdin
	}
	return os.Stdin
}

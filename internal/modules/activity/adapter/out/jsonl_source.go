package out

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"gymtrack/internal/modules/activity/domain"
	"gymtrack/internal/platform/clock"
	"gymtrack/internal/platform/logging"
)

// JSONLineSource reads one JSON sample per line, for example piped from another tool.
// A line without a timestamp is stamped with the clock; malformed lines are skipped.
type JSONLineSource struct {
	Reader io.Reader
	Clock  clock.Clock
	Log    *slog.Logger

	closer io.Closer
}

func (s *JSONLineSource) Open(ctx context.Context) (<-chan domain.Sample, error) {
	clk := s.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	log := logging.OrDiscard(s.Log)
	out := make(chan domain.Sample, 16)
	go func() {
		defer close(out)
		if s.closer != nil {
			defer s.closer.Close()
		}
		scanner := bufio.NewScanner(s.Reader)
		line := 0
		for scanner.Scan() {
			line++
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			var sample domain.Sample
			if err := json.Unmarshal([]byte(text), &sample); err != nil {
				log.Warn("sample line skipped", "line", line, "error", err)
				continue
			}
			if sample.Timestamp.IsZero() {
				sample.Timestamp = clk.Now()
			}
			select {
			case out <- sample:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

package clock

import "time"

// Clock abstracts time to keep elapsed-time and recovery math deterministic in tests.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Ticker is the subset of *time.Ticker the sync loop needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates tickers; tests swap it for a manually driven channel.
type TickerFactory func(d time.Duration) Ticker

type systemTicker struct {
	t *time.Ticker
}

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }

func NewSystemTicker(d time.Duration) Ticker {
	return systemTicker{t: time.NewTicker(d)}
}

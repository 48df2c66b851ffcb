package domain

import "time"

// ElapsedClock reconstructs active time from wall-clock anchors instead of counting
// ticks, so a suspended process reads the right duration as soon as it runs again.
type ElapsedClock struct {
	Prior       time.Duration `json:"prior"`
	ActiveSince time.Time     `json:"active_since"`
}

func (c ElapsedClock) Running() bool {
	return !c.ActiveSince.IsZero()
}

// Elapsed is now - ActiveSince + Prior. A clock that moved backwards adds nothing.
func (c ElapsedClock) Elapsed(now time.Time) time.Duration {
	if !c.Running() {
		return c.Prior
	}
	segment := now.Sub(c.ActiveSince)
	if segment < 0 {
		segment = 0
	}
	return c.Prior + segment
}

// Start anchors the clock at now. Starting a running clock is a no-op.
func (c *ElapsedClock) Start(now time.Time) {
	if c.Running() {
		return
	}
	c.ActiveSince = now
}

// Pause freezes the elapsed total and clears the anchor.
func (c *ElapsedClock) Pause(now time.Time) {
	if !c.Running() {
		return
	}
	c.Prior = c.Elapsed(now)
	c.ActiveSince = time.Time{}
}

func (c *ElapsedClock) Resume(now time.Time) {
	c.Start(now)
}

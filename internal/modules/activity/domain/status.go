package domain

import (
	"fmt"

	apperrors "gymtrack/internal/platform/errors"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusStarting  Status = "starting"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusFinishing Status = "finishing"
	StatusFinished  Status = "finished"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

// Open reports whether the session still counts against the one-open-session-per-student rule.
func (s Status) Open() bool {
	return s == StatusActive || s == StatusPaused
}

type Event string

const (
	EventStart   Event = "start"
	EventConfirm Event = "confirm"
	EventReject  Event = "reject"
	EventPause   Event = "pause"
	EventResume  Event = "resume"
	EventFinish  Event = "finish"
	EventCancel  Event = "cancel"
)

var transitions = map[Status]map[Event]Status{
	StatusIdle: {
		EventStart: StatusStarting,
	},
	StatusStarting: {
		EventConfirm: StatusActive,
		EventReject:  StatusIdle,
		EventCancel:  StatusCancelled,
	},
	StatusActive: {
		EventPause:  StatusPaused,
		EventFinish: StatusFinishing,
		EventCancel: StatusCancelled,
	},
	StatusPaused: {
		EventResume: StatusActive,
		EventFinish: StatusFinishing,
		EventCancel: StatusCancelled,
	},
	StatusFinishing: {
		EventConfirm: StatusFinished,
	},
}

// Next returns the status reached from `from` on ev.
func Next(from Status, ev Event) (Status, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return from, fmt.Errorf("%w: %s while %s", apperrors.ErrInvalidTransition, ev, from)
}

package apperrors

import (
	"context"
	"errors"
)

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrNotFound               = errors.New("not found")
	ErrNoActiveSession        = errors.New("no active session")
	ErrActiveSessionExists    = errors.New("active session already exists")
	ErrSessionBusy            = errors.New("session busy: another transition is in flight")
	ErrInvalidTransition      = errors.New("invalid session transition")
	ErrSessionCancelled       = errors.New("session cancelled")
	ErrGeolocationUnavailable = errors.New("geolocation unavailable")
	ErrGeolocationDenied      = errors.New("geolocation permission denied")
	ErrNoInProgressSession    = errors.New("no in-progress session")
	ErrRecoveryRequired       = errors.New("an in-progress session must be resolved before starting")
	ErrBackendUnavailable     = errors.New("backend unavailable")
	ErrBackendRejected        = errors.New("backend rejected request")
)

// Kind groups errors by what a caller can do about them.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindNotFound
	KindBusy
	KindTransition
	KindGeolocation
	KindNetwork
	KindRejected
	KindRecovery
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindBusy:
		return "busy"
	case KindTransition:
		return "transition"
	case KindGeolocation:
		return "geolocation"
	case KindNetwork:
		return "network"
	case KindRejected:
		return "rejected"
	case KindRecovery:
		return "recovery"
	default:
		return "unknown"
	}
}

// KindOf classifies err by the sentinel it wraps. Order matters: a rejection that
// wraps ErrActiveSessionExists is still a rejection.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrRecoveryRequired):
		return KindRecovery
	case errors.Is(err, ErrSessionBusy):
		return KindBusy
	case errors.Is(err, ErrGeolocationUnavailable), errors.Is(err, ErrGeolocationDenied):
		return KindGeolocation
	case errors.Is(err, ErrBackendUnavailable), errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	case errors.Is(err, ErrBackendRejected):
		return KindRejected
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrSessionCancelled), errors.Is(err, ErrNoActiveSession):
		return KindTransition
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoInProgressSession):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrActiveSessionExists):
		return KindInvalidInput
	default:
		return KindUnknown
	}
}

// Retryable reports whether repeating the same call later may succeed.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindBusy:
		return true
	default:
		return false
	}
}

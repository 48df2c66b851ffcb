package id

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// Generator creates opaque session identifiers.
type Generator interface {
	New() string
}

// UUID hands out random v4 identifiers.
type UUID struct{}

func (UUID) New() string {
	return uuid.NewString()
}

// Sequence hands out Prefix-1, Prefix-2, ... and is safe for concurrent use.
type Sequence struct {
	Prefix string

	mu sync.Mutex
	n  int
}

func (s *Sequence) New() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.Prefix + "-" + strconv.Itoa(s.n)
}

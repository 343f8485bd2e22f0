package liveness

import (
	"github.com/libresprite/recovery/internal/core/domain"
)

// Prober reports whether a process is alive.
type Prober interface {
	Alive(pid int) (bool, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(pid int) (bool, error)

// Alive calls f(pid).
func (f ProberFunc) Alive(pid int) (bool, error) { return f(pid) }

// New returns the prober for the current platform.
func New() Prober {
	return ProberFunc(alive)
}

// Alive probes pid with the platform prober.
func Alive(pid int) (bool, error) {
	if pid <= 0 {
		return false, domain.ErrLivenessProbe.WithDetailsf("invalid pid %d", pid)
	}
	return alive(pid)
}

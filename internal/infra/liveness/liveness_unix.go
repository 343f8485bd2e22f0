//go:build unix

package liveness

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/libresprite/recovery/internal/core/domain"
)

func alive(pid int) (bool, error) {
	if pid <= 0 {
		return false, domain.ErrLivenessProbe.WithDetailsf("invalid pid %d", pid)
	}
	err := unix.Kill(pid, 0)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, unix.EPERM):
		return true, nil
	case errors.Is(err, unix.ESRCH):
		return false, nil
	default:
		return false, domain.ErrLivenessProbe.WithDetailsf("kill(%d, 0)", pid).WithCause(err)
	}
}

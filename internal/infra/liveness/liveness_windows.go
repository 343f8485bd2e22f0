//go:build windows

package liveness

import (
	"errors"

	"golang.org/x/sys/windows"

	"github.com/libresprite/recovery/internal/core/domain"
)

// stillActive is the exit code reported for a process that has not exited.
const stillActive = 259

func alive(pid int) (bool, error) {
	if pid <= 0 {
		return false, domain.ErrLivenessProbe.WithDetailsf("invalid pid %d", pid)
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		switch {
		case errors.Is(err, windows.ERROR_INVALID_PARAMETER):
			return false, nil
		case errors.Is(err, windows.ERROR_ACCESS_DENIED):
			return true, nil
		default:
			return false, domain.ErrLivenessProbe.WithDetailsf("OpenProcess(%d)", pid).WithCause(err)
		}
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false, domain.ErrLivenessProbe.WithDetailsf("GetExitCodeProcess(%d)", pid).WithCause(err)
	}
	return code == stillActive, nil
}

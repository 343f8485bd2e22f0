//go:build !unix && !windows

package liveness

import (
	"runtime"

	"github.com/libresprite/recovery/internal/core/domain"
)

func alive(pid int) (bool, error) {
	return false, domain.ErrProbeUnsupported.WithDetails(runtime.GOOS)
}

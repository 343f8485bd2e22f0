// Package buildinfo exposes version information of the recovery tools.
//
// Values are injected at build time via ldflags:
//
//	go build -ldflags "-X github.com/libresprite/recovery/internal/infra/buildinfo.Version=v1.2.0"
//
// When a value is not injected it is filled from the module build info
// embedded by the Go toolchain (VCS revision, VCS time, Go version).
package buildinfo

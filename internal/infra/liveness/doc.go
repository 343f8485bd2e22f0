// Package liveness answers "is the process with this pid still running?".
//
// The probe is platform specific:
//
//   - Unix: kill(pid, 0). EPERM means the process exists but belongs to
//     another user, which still counts as running.
//   - Windows: OpenProcess + GetExitCodeProcess == STILL_ACTIVE.
//   - Elsewhere: the probe is unsupported and always errors.
//
// PID reuse is an accepted limitation: a crashed session whose pid was
// recycled by an unrelated process is reported as running and is not
// offered for recovery until that process exits.
package liveness

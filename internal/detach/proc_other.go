//go:build !linux && !windows

package detach

import (
	"time"

	"golang.org/x/sys/unix"
)

// readProcInfo has no portable source for a process start time here, so it
// only reports existence and leaves the fingerprint unverifiable.
func readProcInfo(pid int) (procInfo, error) {
	if err := unix.Kill(pid, 0); err == unix.ESRCH {
		return procInfo{}, errNoProcess
	}
	return procInfo{}, nil
}

// generationOf stamps the spawn time. It keeps ids unique across pid reuse
// but cannot be checked later.
func generationOf(_ int, started time.Time) (uint64, error) {
	return uint64(started.UnixNano()), nil
}

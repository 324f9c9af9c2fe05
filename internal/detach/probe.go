//go:build !windows

package detach

import (
	"errors"
	"io/fs"

	"golang.org/x/sys/unix"
)

// Probe checks whether the process pid with the given generation is still
// running. It never sends a signal.
func Probe(pid int, generation uint64) Liveness {
	if pid <= 0 {
		return Gone
	}

	killErr := unix.Kill(pid, 0)
	switch {
	case killErr == nil:
	case errors.Is(killErr, unix.ESRCH):
		return Gone
	case errors.Is(killErr, unix.EPERM):
		// exists but belongs to someone else; only the fingerprint can tell
	default:
		return Indeterminate
	}

	info, err := readProcInfo(pid)
	switch {
	case errors.Is(err, errNoProcess), errors.Is(err, fs.ErrNotExist):
		return Gone
	case err != nil:
		return Indeterminate
	}

	if info.State == 'Z' || info.State == 'X' {
		return Gone
	}
	if !info.Verifiable {
		if killErr != nil {
			return Indeterminate
		}
		return Alive
	}
	if info.Generation != generation {
		return Gone
	}
	return Alive
}

// Generation returns the fingerprint of a running process, for tests and
// diagnostics.
func Generation(pid int) (uint64, bool) {
	info, err := readProcInfo(pid)
	if err != nil || !info.Verifiable {
		return 0, false
	}
	return info.Generation, true
}

//go:build !windows

package redirect

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// openFlags is added to every target open. A session leader without a
// controlling terminal would otherwise acquire a terminal it opens.
const openFlags = unix.O_NOCTTY

// SealInherited marks every open descriptor numbered from lowest upward as
// close-on-exec, so that nothing the process inherited leaks into a program
// it executes. The descriptors stay usable in the current process.
func SealInherited(lowest int) error {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		entries, err = os.ReadDir("/dev/fd")
	}
	if err != nil {
		return fmt.Errorf("failed to enumerate descriptors: %w", err)
	}

	for _, entry := range entries {
		fd, err := strconv.Atoi(entry.Name())
		if err != nil || fd < lowest {
			continue
		}
		// the directory handle used for the listing is already closed
		unix.CloseOnExec(fd)
	}
	return nil
}

// IsCloseOnExec reports whether fd carries FD_CLOEXEC
func IsCloseOnExec(fd int) (bool, error) {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		return false, err
	}
	return flags&unix.FD_CLOEXEC != 0, nil
}

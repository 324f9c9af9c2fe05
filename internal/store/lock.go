//go:build !windows

package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const lockFile = ".lock"

// lock takes the write lock of the state directory, shared by every
// process using it. Writers that check a record before replacing it hold
// the lock, so a removal cannot land between the check and the rename.
func (s *Store) lock() (func(), error) {
	f, err := os.OpenFile(filepath.Join(s.dir, lockFile), os.O_RDWR|os.O_CREATE, recordPerm)
	if os.IsNotExist(err) {
		// no directory, no records to protect
		return func() {}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open store lock: %w", err)
	}
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to lock store: %w", err)
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}

//go:build !windows

package detach

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

const supported = true

// reexecEnv marks a shim that already re-executed itself to get a session.
const reexecEnv = "DETACH_SHIM_REEXEC"

// errReexeced tells the current shim to exit: a fresh copy took over the
// handshake in a new session.
var errReexeced = errors.New("handshake handed over to a new session")

// sessionAttr makes the child the leader of a new session with no
// controlling terminal, so a hangup of the caller's terminal never reaches it.
func sessionAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

// payloadAttr puts the payload in its own process group inside the shim's
// session. Not being a session leader, it cannot acquire a terminal.
func payloadAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// ensureSession makes the current process a session leader. When setsid is
// refused because the process leads a group, it re-executes itself as the
// leader of a new session and returns errReexeced.
func ensureSession() error {
	if sid, err := unix.Getsid(0); err == nil && sid == os.Getpid() {
		return nil
	}
	_, err := unix.Setsid()
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.EPERM) {
		return fmt.Errorf("setsid: %w", err)
	}
	if os.Getenv(reexecEnv) != "" {
		return fmt.Errorf("setsid: %w after re-exec", err)
	}
	return reexecInNewSession()
}

func reexecInNewSession() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("re-exec: %w", err)
	}
	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), reexecEnv+"=1")
	cmd.Dir = "/"
	cmd.ExtraFiles = []*os.File{
		os.NewFile(ControlFD, "control"),
		os.NewFile(ReportFD, "report"),
	}
	cmd.SysProcAttr = sessionAttr()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("re-exec: %w", err)
	}
	return errReexeced
}

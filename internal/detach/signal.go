//go:build !windows

package detach

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// DefaultStopSignal is sent first when stopping a task
const DefaultStopSignal = "SIGTERM"

// ParseSignal accepts SIGTERM, TERM, term or 15.
func ParseSignal(name string) (syscall.Signal, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return unix.SIGTERM, nil
	}
	if n, err := strconv.Atoi(name); err == nil {
		sig := syscall.Signal(n)
		if n <= 0 || unix.SignalName(sig) == "" {
			return 0, fmt.Errorf("unknown signal: %s", name)
		}
		return sig, nil
	}
	upper := strings.ToUpper(name)
	if !strings.HasPrefix(upper, "SIG") {
		upper = "SIG" + upper
	}
	sig := unix.SignalNum(upper)
	if sig == 0 {
		return 0, fmt.Errorf("unknown signal: %s", name)
	}
	return sig, nil
}

// SignalName returns the conventional name of sig, such as SIGKILL.
func SignalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return "SIG" + strconv.Itoa(int(sig))
}

// SignalGroup delivers sig to every process of group pgid. A group that no
// longer exists is not an error.
func SignalGroup(pgid int, sig syscall.Signal) error {
	if pgid <= 1 {
		return fmt.Errorf("refusing to signal process group %d", pgid)
	}
	err := unix.Kill(-pgid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

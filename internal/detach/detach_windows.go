package detach

import (
	"errors"
	"syscall"

	"go.uber.org/zap"
)

const supported = false

// DefaultStopSignal is sent first when stopping a task
const DefaultStopSignal = "SIGTERM"

var errUnsupported = errors.New("detached tasks are not supported on windows")

func sessionAttr() *syscall.SysProcAttr { return nil }

// RunShim is not supported on this platform
func RunShim(logger *zap.Logger) int { return 1 }

// Probe cannot identify processes on this platform
func Probe(pid int, generation uint64) Liveness { return Indeterminate }

// Generation is not available on this platform
func Generation(pid int) (uint64, bool) { return 0, false }

// ParseSignal is not supported on this platform
func ParseSignal(name string) (syscall.Signal, error) { return 0, errUnsupported }

// SignalName returns a generic name for sig
func SignalName(sig syscall.Signal) string { return sig.String() }

// SignalGroup is not supported on this platform
func SignalGroup(pgid int, sig syscall.Signal) error { return errUnsupported }

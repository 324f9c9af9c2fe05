package detach

import "errors"

var errNoProcess = errors.New("no such process")

type procInfo struct {
	Generation uint64
	State      byte // scheduler state letter, 0 when unknown
	Verifiable bool // Generation can be compared with a recorded one
}

// Liveness is the outcome of a probe
type Liveness int

const (
	// Gone means the process exited, is a zombie, or the pid now belongs to
	// another process.
	Gone Liveness = iota
	// Alive means the recorded process is still running.
	Alive
	// Indeterminate means the process exists but cannot be identified.
	Indeterminate
)

func (l Liveness) String() string {
	switch l {
	case Alive:
		return "alive"
	case Gone:
		return "gone"
	default:
		return "indeterminate"
	}
}

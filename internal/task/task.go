// Package task provides the data model for detached tasks
package task

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// State represents the lifecycle state of a task
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateExited   State = "exited"
	StateSignaled State = "signaled"
	StateUnknown  State = "unknown"
)

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid checks if the state is valid
func (s State) IsValid() bool {
	switch s {
	case StateStarting, StateRunning, StateExited, StateSignaled, StateUnknown:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition can leave this state.
// Unknown is not terminal: it must be re-probed.
func (s State) IsTerminal() bool {
	return s == StateExited || s == StateSignaled
}

// ExitCodeUnobserved is recorded when a task ended but nobody was in a
// position to reap it and read its exit code.
const ExitCodeUnobserved = -1

// Status is the observable status of a task
type Status struct {
	State    State  `json:"state" yaml:"state"`
	ExitCode int    `json:"exit_code" yaml:"exit_code"`
	Signal   string `json:"signal,omitempty" yaml:"signal,omitempty"`
}

// Starting returns the status of a task whose handshake is in flight
func Starting() Status { return Status{State: StateStarting} }

// Running returns the status of a live task
func Running() Status { return Status{State: StateRunning} }

// Unknown returns the status of a task whose liveness cannot be determined
func Unknown() Status { return Status{State: StateUnknown} }

// Exited returns a terminal status for a task that exited with code
func Exited(code int) Status { return Status{State: StateExited, ExitCode: code} }

// Signaled returns a terminal status for a task killed by signal
func Signaled(signal string) Status {
	return Status{State: StateSignaled, ExitCode: ExitCodeUnobserved, Signal: signal}
}

// IsTerminal reports whether the status is final
func (s Status) IsTerminal() bool {
	return s.State.IsTerminal()
}

// String renders the status as exited(0), signaled(SIGKILL), running, ...
func (s Status) String() string {
	switch s.State {
	case StateExited:
		if s.ExitCode == ExitCodeUnobserved {
			return "exited(?)"
		}
		return fmt.Sprintf("exited(%d)", s.ExitCode)
	case StateSignaled:
		return fmt.Sprintf("signaled(%s)", s.Signal)
	default:
		return string(s.State)
	}
}

// ID identifies one task: the payload pid plus its generation fingerprint
type ID string

var idPattern = regexp.MustCompile(`^[0-9]+-[0-9a-f]+$`)

// NewID builds the id of the process pid whose fingerprint is generation
func NewID(pid int, generation uint64) ID {
	return ID(fmt.Sprintf("%d-%x", pid, generation))
}

// ParseID validates s as a task id
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if !idPattern.MatchString(s) {
		return "", fmt.Errorf("invalid task id: %q", s)
	}
	return ID(s), nil
}

// String returns the string representation of the id
func (id ID) String() string {
	return string(id)
}

// PID returns the pid part of the id, or 0 if the id is malformed
func (id ID) PID() int {
	head, _, ok := strings.Cut(string(id), "-")
	if !ok {
		return 0
	}
	pid, err := strconv.Atoi(head)
	if err != nil {
		return 0
	}
	return pid
}

// Command is the executable and arguments a task runs
type Command struct {
	Path string   `json:"path" yaml:"path"`
	Args []string `json:"args" yaml:"args"`
	Dir  string   `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// String renders the command line for display
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Path
	}
	return c.Path + " " + strings.Join(c.Args, " ")
}

// Handle is the durable record of one detached task
type Handle struct {
	ID             ID         `json:"id" yaml:"id"`
	PID            int        `json:"pid" yaml:"pid"`
	PGID           int        `json:"pgid" yaml:"pgid"`
	Generation     uint64     `json:"generation" yaml:"generation"`
	ShimPID        int        `json:"shim_pid,omitempty" yaml:"shim_pid,omitempty"`
	ShimGeneration uint64     `json:"shim_generation,omitempty" yaml:"shim_generation,omitempty"`
	Supervised     bool       `json:"supervised" yaml:"supervised"`
	Command        Command    `json:"command" yaml:"command"`
	Status         Status     `json:"status" yaml:"status"`
	Stdin          Target     `json:"stdin" yaml:"stdin"`
	Stdout         Target     `json:"stdout" yaml:"stdout"`
	Stderr         Target     `json:"stderr" yaml:"stderr"`
	StopSignal     string     `json:"stop_signal,omitempty" yaml:"stop_signal,omitempty"`
	MaxRuntime     Duration   `json:"max_runtime,omitempty" yaml:"max_runtime,omitempty"`
	StartedAt      time.Time  `json:"started_at" yaml:"started_at"`
	UpdatedAt      time.Time  `json:"updated_at" yaml:"updated_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// MarkRunning moves a starting task to running. Terminal tasks are left alone.
func (h *Handle) MarkRunning() {
	if h.Status.IsTerminal() {
		return
	}
	h.Status = Running()
	h.UpdatedAt = time.Now().UTC()
}

// MarkFinished records a terminal status
func (h *Handle) MarkFinished(s Status, at time.Time) {
	h.Status = s
	h.UpdatedAt = at
	h.FinishedAt = &at
}

// Validate validates the handle
func (h *Handle) Validate() error {
	if _, err := ParseID(string(h.ID)); err != nil {
		return err
	}
	if h.PID <= 0 {
		return fmt.Errorf("task %s: pid must be positive", h.ID)
	}
	if h.Command.Path == "" {
		return fmt.Errorf("task %s: command path is required", h.ID)
	}
	if !h.Status.State.IsValid() {
		return fmt.Errorf("task %s: invalid state: %s", h.ID, h.Status.State)
	}
	for _, t := range []Target{h.Stdin, h.Stdout, h.Stderr} {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("task %s: %w", h.ID, err)
		}
	}
	return nil
}

// Summary returns a short summary of the handle
func (h *Handle) Summary() string {
	return fmt.Sprintf("[%s] %s - %s", h.ID, h.Command, h.Status)
}

// ToJSON converts the handle to JSON
func (h *Handle) ToJSON() ([]byte, error) {
	return json.MarshalIndent(h, "", "  ")
}

// FromJSON creates a handle from JSON
func FromJSON(data []byte) (*Handle, error) {
	var h Handle
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse task JSON: %w", err)
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return &h, nil
}

// Duration is a time.Duration that serializes as "1m30s"
type Duration time.Duration

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements the function form of yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

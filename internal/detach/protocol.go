package detach

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	derrors "github.com/kokjohn0824/detach/internal/errors"
	"github.com/kokjohn0824/detach/internal/i18n"
	"github.com/kokjohn0824/detach/internal/task"
)

// Descriptors of the handshake pipes in the intermediate process.
const (
	ControlFD = 3 // caller -> shim: request, then ack
	ReportFD  = 4 // shim -> caller: ready or failed
)

// maxLine bounds a handshake line; a request carries a command line and its
// environment.
const maxLine = 1 << 20

// Request is what the caller asks the shim to run
type Request struct {
	Path          string        `json:"path"`
	Args          []string      `json:"args,omitempty"`
	Dir           string        `json:"dir,omitempty"`
	Env           []string      `json:"env,omitempty"`
	Stdin         task.Target   `json:"stdin"`
	Stdout        task.Target   `json:"stdout"`
	Stderr        task.Target   `json:"stderr"`
	Supervise     bool          `json:"supervise"`
	MaxRuntime    time.Duration `json:"max_runtime,omitempty"`
	StopSignal    string        `json:"stop_signal,omitempty"`
	Grace         time.Duration `json:"grace,omitempty"`
	FlushInterval time.Duration `json:"flush_interval,omitempty"`
	StateDir      string        `json:"state_dir"`
}

// Validate checks the request before it is sent
func (r *Request) Validate() error {
	if r.Path == "" {
		return derrors.Launch(derrors.ReasonInvalid, "empty command", nil)
	}
	if r.StateDir == "" {
		return derrors.Launch(derrors.ReasonInvalid, "no state directory", nil)
	}
	for _, t := range []task.Target{r.Stdin, r.Stdout, r.Stderr} {
		if err := t.Validate(); err != nil {
			return derrors.Launch(derrors.ReasonInvalid, err.Error(), nil)
		}
	}
	if r.Stdin.Kind == task.TargetCapture {
		return derrors.Launch(derrors.ReasonInvalid, "stdin cannot be captured", nil)
	}
	if !r.Supervise {
		if r.Stdout.Kind == task.TargetCapture || r.Stderr.Kind == task.TargetCapture {
			return derrors.Launch(derrors.ReasonInvalid, i18n.ErrMsgCaptureNeedsSup, nil)
		}
		if r.MaxRuntime > 0 {
			return derrors.Launch(derrors.ReasonInvalid, i18n.ErrMsgRuntimeNeedsSup, nil)
		}
	}
	return nil
}

// Report types
const (
	ReportReady  = "ready"
	ReportFailed = "failed"
)

// Report is the shim's answer to a Request
type Report struct {
	Type           string    `json:"type"`
	PID            int       `json:"pid,omitempty"`
	PGID           int       `json:"pgid,omitempty"`
	Generation     uint64    `json:"generation,omitempty"`
	ShimPID        int       `json:"shim_pid,omitempty"`
	ShimGeneration uint64    `json:"shim_generation,omitempty"`
	StartedAt      time.Time `json:"started_at,omitzero"`

	Kind    string `json:"kind,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// ID returns the task id named by a ready report
func (r *Report) ID() task.ID {
	return task.NewID(r.PID, r.Generation)
}

// Err converts a failed report into the error it describes
func (r *Report) Err() error {
	if r.Type != ReportFailed {
		return nil
	}
	return derrors.Launch(derrors.Reason(r.Reason), r.Message, nil)
}

func failedReport(err error) *Report {
	reason := derrors.ReasonOf(err)
	if reason == derrors.ReasonNone {
		reason = derrors.ReasonDetach
	}
	return &Report{
		Type:    ReportFailed,
		Kind:    derrors.KindLaunch.String(),
		Reason:  string(reason),
		Message: rootMessage(err),
	}
}

// rootMessage strips the launch prefix so the caller does not repeat it
func rootMessage(err error) string {
	var e *derrors.Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	msg := strings.TrimPrefix(e.Message, string(e.Reason))
	msg = strings.TrimPrefix(msg, ": ")
	if e.Err != nil {
		if msg == "" {
			return e.Err.Error()
		}
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

const ackLine = "ack"

type ackMessage struct {
	Type string `json:"type"`
}

func writeLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func readLine(r *bufio.Reader, v any) error {
	line, err := r.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		return fmt.Errorf("handshake line exceeds %d bytes", maxLine)
	}
	if err != nil {
		if err == io.EOF && len(line) > 0 {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	return json.Unmarshal(line, v)
}

func newLineReader(r io.Reader) *bufio.Reader {
	return bufio.NewReaderSize(r, maxLine)
}

// sendAck writes the acknowledgement line
func sendAck(w io.Writer) error {
	return writeLine(w, ackMessage{Type: ackLine})
}

// readAck reports whether an ack arrived before EOF
func readAck(r *bufio.Reader) bool {
	var msg ackMessage
	if err := readLine(r, &msg); err != nil {
		return false
	}
	return msg.Type == ackLine
}

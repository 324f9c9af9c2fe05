// Package detach launches commands that outlive the caller and its session.
//
// A launch goes through an intermediate process, the shim: the same
// executable re-invoked in a new session. The shim starts the payload as its
// own child and reports the payload identity back over a pipe. The caller
// records the task and acknowledges; without that acknowledgement the shim
// kills the payload, so a launch either yields a recorded task or nothing.
package detach

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	derrors "github.com/kokjohn0824/detach/internal/errors"
)

// Detacher spawns shims
type Detacher struct {
	// Executable runs RunShim when started with Args. Empty means the
	// current executable.
	Executable string
	Args       []string
	// Env is the environment of the shim; nil inherits the caller's.
	Env    []string
	Retry  Retry
	Logger *zap.Logger
}

func (d *Detacher) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d *Detacher) retry() Retry {
	if d.Retry.Attempts <= 0 {
		return DefaultRetry
	}
	return d.Retry
}

// Launch is a payload that started and waits for the caller's decision.
// Exactly one of Ack or Abort must be called.
type Launch struct {
	Report *Report

	cmd     *exec.Cmd
	control *os.File
	report  *os.File
	once    sync.Once
}

// Spawn starts a shim for req and waits up to timeout for its report. On
// success the payload is running and the returned Launch must be
// acknowledged or aborted.
func (d *Detacher) Spawn(ctx context.Context, req *Request, timeout time.Duration) (*Launch, error) {
	if !supported {
		return nil, derrors.Launch(derrors.ReasonDetach, "unsupported platform", nil)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	exe := d.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return nil, derrors.Launch(derrors.ReasonDetach, "resolve executable", err)
		}
	}

	controlR, controlW, err := os.Pipe()
	if err != nil {
		return nil, derrors.Launch(derrors.ReasonDetach, "control pipe", err)
	}
	reportR, reportW, err := os.Pipe()
	if err != nil {
		controlR.Close()
		controlW.Close()
		return nil, derrors.Launch(derrors.ReasonDetach, "report pipe", err)
	}

	var cmd *exec.Cmd
	attempt := 0
	err = d.retry().do(ctx, func() error {
		attempt++
		// a Cmd cannot be started twice
		cmd = exec.Command(exe, d.Args...)
		cmd.Env = d.Env
		cmd.Dir = "/"
		cmd.ExtraFiles = []*os.File{controlR, reportW}
		cmd.SysProcAttr = sessionAttr()
		err := cmd.Start()
		if err != nil {
			d.logger().Debug("spawn attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	})
	// the shim holds its own copies
	controlR.Close()
	reportW.Close()
	if err != nil {
		controlW.Close()
		reportR.Close()
		return nil, derrors.Launch(derrors.ReasonDetach, "spawn intermediate process", err)
	}

	l := &Launch{cmd: cmd, control: controlW, report: reportR}
	if err := writeLine(controlW, req); err != nil {
		l.Abort()
		return nil, derrors.Launch(derrors.ReasonDetach, "send launch request", err)
	}

	rep, err := l.awaitReport(ctx, timeout)
	if err != nil {
		l.Abort()
		return nil, err
	}
	switch rep.Type {
	case ReportReady:
		l.Report = rep
		d.logger().Debug("payload ready",
			zap.Int("pid", rep.PID), zap.Int("shim_pid", rep.ShimPID))
		return l, nil
	case ReportFailed:
		l.release()
		return nil, rep.Err()
	default:
		l.Abort()
		return nil, derrors.Launch(derrors.ReasonDetach, "unexpected report "+rep.Type, nil)
	}
}

func (l *Launch) awaitReport(ctx context.Context, timeout time.Duration) (*Report, error) {
	type result struct {
		rep *Report
		err error
	}
	ch := make(chan result, 1)
	go func() {
		var rep Report
		err := readLine(newLineReader(l.report), &rep)
		ch <- result{&rep, err}
	}()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case res := <-ch:
		if res.err != nil {
			if errors.Is(res.err, io.EOF) {
				return nil, derrors.Launch(derrors.ReasonDetach, "intermediate process exited without reporting", nil)
			}
			return nil, derrors.Launch(derrors.ReasonDetach, "read report", res.err)
		}
		return res.rep, nil
	case <-deadline:
		return nil, derrors.LaunchTimeout(timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ack confirms the task was recorded. The shim then either exits, leaving
// the payload to the system reaper, or stays to supervise it.
func (l *Launch) Ack() error {
	err := sendAck(l.control)
	l.release()
	if err != nil {
		return derrors.Launch(derrors.ReasonDetach, "acknowledge launch", err)
	}
	return nil
}

// Abort withdraws the launch: the shim sees the control pipe close without
// an acknowledgement and kills the payload.
func (l *Launch) Abort() {
	l.release()
}

// release closes the handshake pipes and reaps the shim in the background.
// A supervising shim lives as long as its payload, and so does the reaping
// goroutine unless the caller exits first.
func (l *Launch) release() {
	l.once.Do(func() {
		l.control.Close()
		l.report.Close()
		go func() { _ = l.cmd.Wait() }()
	})
}

// ShimPID returns the pid of the intermediate process
func (l *Launch) ShimPID() int {
	return l.cmd.Process.Pid
}

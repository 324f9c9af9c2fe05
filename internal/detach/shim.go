//go:build !windows

package detach

import (
	"bufio"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	derrors "github.com/kokjohn0824/detach/internal/errors"
	"github.com/kokjohn0824/detach/internal/redirect"
	"github.com/kokjohn0824/detach/internal/store"
	"github.com/kokjohn0824/detach/internal/task"
)

// drainTimeout bounds how long the shim waits for captured output after the
// payload exited.
const drainTimeout = time.Second

// Shim exit codes
const (
	ShimExitOK      = 0
	ShimExitFailed  = 1
	ShimExitNoPipes = 2
)

// RunShim is the intermediate process of a launch. It expects the control
// pipe on fd 3 and the report pipe on fd 4, and returns the process exit
// code.
func RunShim(logger *zap.Logger) int {
	if logger == nil {
		logger = zap.NewNop()
	}
	control := os.NewFile(ControlFD, "control")
	report := os.NewFile(ReportFD, "report")
	if control == nil || report == nil {
		return ShimExitNoPipes
	}

	s := &shim{
		logger:  logger,
		control: newLineReader(control),
		report:  report,
	}

	if err := ensureSession(); err != nil {
		if errors.Is(err, errReexeced) {
			return ShimExitOK
		}
		s.fail(derrors.Launch(derrors.ReasonDetach, "", err))
		return ShimExitFailed
	}

	var req Request
	if err := readLine(s.control, &req); err != nil {
		logger.Error("failed to read launch request", zap.Error(err))
		return ShimExitFailed
	}
	s.logger = logger.With(zap.String("command", req.Path))

	code := s.run(&req)
	control.Close()
	report.Close()
	return code
}

type shim struct {
	logger  *zap.Logger
	control *bufio.Reader
	report  *os.File
}

func (s *shim) fail(err error) {
	s.logger.Warn("launch failed", zap.Error(err))
	if werr := writeLine(s.report, failedReport(err)); werr != nil {
		s.logger.Error("failed to report launch failure", zap.Error(werr))
	}
}

func (s *shim) run(req *Request) int {
	if err := req.Validate(); err != nil {
		s.fail(err)
		return ShimExitFailed
	}
	if err := redirect.SealInherited(ControlFD); err != nil {
		s.fail(derrors.Launch(derrors.ReasonDetach, "seal descriptors", err))
		return ShimExitFailed
	}

	streams, err := redirect.Open(req.Stdin, req.Stdout, req.Stderr)
	if err != nil {
		s.fail(err)
		return ShimExitFailed
	}

	stopSig, err := ParseSignal(req.StopSignal)
	if err != nil {
		streams.Close()
		s.fail(derrors.Launch(derrors.ReasonInvalid, err.Error(), nil))
		return ShimExitFailed
	}

	// Caught, not ignored: an ignored disposition would be inherited by
	// the payload across exec.
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, unix.SIGHUP, unix.SIGINT, unix.SIGTERM)
	defer signal.Stop(sigs)

	cmd := exec.Command(req.Path, req.Args...)
	cmd.Dir = req.Dir
	cmd.Env = req.Env
	cmd.Stdin = streams.Stdin
	cmd.Stdout = streams.Stdout
	cmd.Stderr = streams.Stderr
	cmd.SysProcAttr = payloadAttr()

	startedAt := time.Now().UTC()
	if err := cmd.Start(); err != nil {
		streams.Close()
		s.fail(classifyStartError(req.Path, err))
		return ShimExitFailed
	}
	streams.CloseChildEnds()
	streams.StartDrain()

	pid := cmd.Process.Pid
	gen, err := generationOf(pid, startedAt)
	if err != nil {
		s.abandon(cmd, pid, streams)
		s.fail(derrors.Launch(derrors.ReasonDetach, "fingerprint payload", err))
		return ShimExitFailed
	}
	shimGen, err := generationOf(os.Getpid(), startedAt)
	if err != nil {
		shimGen = 0
	}

	ready := &Report{
		Type:           ReportReady,
		PID:            pid,
		PGID:           pid,
		Generation:     gen,
		ShimPID:        os.Getpid(),
		ShimGeneration: shimGen,
		StartedAt:      startedAt,
	}
	s.logger = s.logger.With(zap.String("id", ready.ID().String()), zap.Int("pid", pid))

	if err := writeLine(s.report, ready); err != nil {
		s.logger.Warn("caller went away before ready", zap.Error(err))
		s.abandon(cmd, pid, streams)
		return ShimExitFailed
	}
	if !readAck(s.control) {
		s.logger.Warn("launch not acknowledged, killing payload")
		s.abandon(cmd, pid, streams)
		return ShimExitFailed
	}
	s.logger.Info("payload started", zap.Bool("supervised", req.Supervise))

	if !req.Supervise {
		// the payload is orphaned and reparented to the system reaper; the
		// record belongs to the controller from here on
		streams.Close()
		return ShimExitOK
	}

	st := store.New(req.StateDir)
	id := ready.ID()
	if h, err := st.Get(id); err != nil {
		s.logger.Error("failed to load task record", zap.Error(err))
	} else {
		h.MarkRunning()
		if err := st.Update(h); err != nil {
			s.logger.Error("failed to record running task", zap.Error(err))
		}
	}

	sv := &supervisor{
		logger:  s.logger,
		store:   st,
		id:      id,
		cmd:     cmd,
		pgid:    pid,
		streams: streams,
		stopSig: stopSig,
		req:     req,
		sigs:    sigs,
	}
	return sv.run()
}

// abandon kills a payload the caller will never know about.
func (s *shim) abandon(cmd *exec.Cmd, pgid int, streams *redirect.Streams) {
	if err := SignalGroup(pgid, unix.SIGKILL); err != nil {
		s.logger.Error("failed to kill abandoned payload", zap.Error(err))
	}
	_ = cmd.Wait()
	streams.Close()
}

func classifyStartError(path string, err error) error {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return derrors.Launch(derrors.ReasonNotFound, path, err)
	case errors.Is(err, fs.ErrPermission):
		return derrors.Launch(derrors.ReasonPermission, path, err)
	default:
		return derrors.Launch(derrors.ReasonDetach, path, err)
	}
}

// supervisor reaps the payload and records how it ended
type supervisor struct {
	logger  *zap.Logger
	store   *store.Store
	id      task.ID
	cmd     *exec.Cmd
	pgid    int
	streams *redirect.Streams
	stopSig syscall.Signal
	req     *Request
	sigs    chan os.Signal
}

func (sv *supervisor) run() int {
	ctx, cancel := context.WithCancel(context.Background())
	flusher := redirect.NewFlusher(sv.streams, sv.req.FlushInterval, sv.flush, func(err error) {
		sv.logger.Warn("failed to flush captured output", zap.Error(err))
	})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		flusher.Run(ctx)
	}()

	exited := make(chan error, 1)
	go func() { exited <- sv.cmd.Wait() }()

	var deadline, kill <-chan time.Time
	if sv.req.MaxRuntime > 0 {
		timer := time.NewTimer(sv.req.MaxRuntime)
		defer timer.Stop()
		deadline = timer.C
	}

	var waitErr error
loop:
	for {
		select {
		case waitErr = <-exited:
			break loop
		case sig := <-sv.sigs:
			if sig == unix.SIGTERM {
				sv.logger.Info("forwarding SIGTERM to payload")
				sv.signal(unix.SIGTERM)
			} else {
				sv.logger.Debug("ignoring signal", zap.Stringer("signal", sig))
			}
		case <-deadline:
			deadline = nil
			sv.logger.Info("maximum runtime reached, stopping payload",
				zap.Duration("max_runtime", sv.req.MaxRuntime))
			sv.signal(sv.stopSig)
			timer := time.NewTimer(sv.req.Grace)
			defer timer.Stop()
			kill = timer.C
		case <-kill:
			kill = nil
			sv.logger.Warn("payload ignored stop signal, killing")
			sv.signal(unix.SIGKILL)
		}
	}
	finishedAt := time.Now().UTC()

	cancel()
	wg.Wait()
	if !sv.streams.WaitDrained(drainTimeout) {
		sv.logger.Warn("captured output still open after exit, truncating")
	}
	flusher.Flush(true)
	sv.streams.Close()

	if waitErr != nil && sv.cmd.ProcessState == nil {
		sv.logger.Error("failed to reap payload", zap.Error(waitErr))
	}
	status := exitStatus(sv.cmd.ProcessState)
	sv.logger.Info("payload finished", zap.Stringer("status", status))

	h, err := sv.store.Get(sv.id)
	if err != nil {
		// removed while running: nothing left to record
		sv.logger.Warn("task record unavailable at exit", zap.Error(err))
		return ShimExitOK
	}
	h.MarkFinished(status, finishedAt)
	if err := sv.store.Update(h); err != nil {
		sv.logger.Error("failed to record exit", zap.Error(err))
		return ShimExitFailed
	}
	return ShimExitOK
}

func (sv *supervisor) signal(sig syscall.Signal) {
	if err := SignalGroup(sv.pgid, sig); err != nil {
		sv.logger.Warn("failed to signal payload", zap.Stringer("signal", sig), zap.Error(err))
	}
}

func (sv *supervisor) flush(snap redirect.Snapshot) error {
	return sv.store.PutCapture(sv.id, &store.Capture{
		Stream:    snap.Stream,
		Data:      snap.Data,
		Truncated: snap.Truncated,
		Dropped:   snap.Dropped,
		UpdatedAt: time.Now().UTC(),
	})
}

// exitStatus reads how the payload ended from its wait status
func exitStatus(ps *os.ProcessState) task.Status {
	if ps == nil {
		return task.Exited(task.ExitCodeUnobserved)
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return task.Signaled(SignalName(ws.Signal()))
	}
	return task.Exited(ps.ExitCode())
}

//go:build !windows

package detach

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	derrors "github.com/kokjohn0824/detach/internal/errors"
	"github.com/kokjohn0824/detach/internal/store"
	"github.com/kokjohn0824/detach/internal/task"
)

const shimEnv = "DETACH_TEST_SHIM"

// TestMain lets the test binary double as the intermediate process.
func TestMain(m *testing.M) {
	if os.Getenv(shimEnv) == "1" {
		os.Exit(RunShim(nil))
	}
	os.Exit(m.Run())
}

func testDetacher(t *testing.T) *Detacher {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	return &Detacher{
		Executable: exe,
		Env:        append(os.Environ(), shimEnv+"=1"),
	}
}

func testRequest(t *testing.T, path string, args ...string) *Request {
	t.Helper()
	return &Request{
		Path:     path,
		Args:     args,
		Stdin:    task.Discard(),
		Stdout:   task.Discard(),
		Stderr:   task.Discard(),
		StateDir: t.TempDir(),
	}
}

func TestSpawn_ReadyThenAbortKillsPayload(t *testing.T) {
	d := testDetacher(t)
	req := testRequest(t, "/bin/sleep", "30")

	l, err := d.Spawn(context.Background(), req, 10*time.Second)
	require.NoError(t, err)
	rep := l.Report
	require.Equal(t, ReportReady, rep.Type)
	require.Positive(t, rep.PID)
	assert.Equal(t, rep.PID, rep.PGID)
	assert.NotZero(t, rep.Generation)
	assert.NotZero(t, rep.ShimPID)
	assert.Equal(t, Alive, Probe(rep.PID, rep.Generation))

	l.Abort()
	require.Eventually(t, func() bool {
		return Probe(rep.PID, rep.Generation) == Gone
	}, 10*time.Second, 20*time.Millisecond, "unacknowledged payload must be killed")
}

func TestSpawn_PayloadInNewSession(t *testing.T) {
	d := testDetacher(t)
	req := testRequest(t, "/bin/sleep", "30")

	l, err := d.Spawn(context.Background(), req, 10*time.Second)
	require.NoError(t, err)
	defer l.Abort()
	pid := l.Report.PID

	mySid, err := unix.Getsid(0)
	require.NoError(t, err)
	sid, err := unix.Getsid(pid)
	require.NoError(t, err)
	assert.NotEqual(t, mySid, sid, "payload must not share the caller's session")
	assert.Equal(t, l.Report.ShimPID, sid, "the shim leads the payload's session")

	pgid, err := unix.Getpgid(pid)
	require.NoError(t, err)
	assert.Equal(t, pid, pgid)
}

func TestSpawn_LaunchErrors(t *testing.T) {
	dir := t.TempDir()
	notExec := filepath.Join(dir, "script.sh")
	require.NoError(t, os.WriteFile(notExec, []byte("#!/bin/sh\n"), 0600))

	tests := []struct {
		name     string
		req      func(*Request)
		sentinel error
		reason   derrors.Reason
	}{
		{
			name:     "missing executable",
			req:      func(r *Request) { r.Path = filepath.Join(dir, "missing") },
			sentinel: derrors.ErrCommandNotFound,
			reason:   derrors.ReasonNotFound,
		},
		{
			name:     "missing command on PATH",
			req:      func(r *Request) { r.Path = "detach-test-no-such-command" },
			sentinel: derrors.ErrCommandNotFound,
			reason:   derrors.ReasonNotFound,
		},
		{
			name:     "not executable",
			req:      func(r *Request) { r.Path = notExec },
			sentinel: derrors.ErrPermissionDenied,
			reason:   derrors.ReasonPermission,
		},
		{
			name: "unopenable stdout",
			req: func(r *Request) {
				r.Stdout = task.ToFile(filepath.Join(dir, "no", "dir", "out.log"), false)
			},
			sentinel: derrors.ErrLaunch,
			reason:   derrors.ReasonRedirect,
		},
		{
			name:     "bad stop signal",
			req:      func(r *Request) { r.StopSignal = "SIGNOPE" },
			sentinel: derrors.ErrLaunch,
			reason:   derrors.ReasonInvalid,
		},
	}

	d := testDetacher(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest(t, "/bin/true")
			tt.req(req)
			l, err := d.Spawn(context.Background(), req, 10*time.Second)
			require.Error(t, err)
			assert.Nil(t, l)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.reason, derrors.ReasonOf(err))
		})
	}
}

func TestSpawn_InvalidRequestNotSent(t *testing.T) {
	d := &Detacher{Executable: "/nonexistent"}

	req := testRequest(t, "/bin/true")
	req.Stdout = task.Capture(10)
	_, err := d.Spawn(context.Background(), req, time.Second)
	assert.Equal(t, derrors.ReasonInvalid, derrors.ReasonOf(err))

	req = testRequest(t, "/bin/true")
	req.MaxRuntime = time.Second
	_, err = d.Spawn(context.Background(), req, time.Second)
	assert.Equal(t, derrors.ReasonInvalid, derrors.ReasonOf(err))
}

func TestSpawn_Timeout(t *testing.T) {
	// an intermediate that never reports
	d := &Detacher{Executable: "/bin/sleep", Args: []string{"5"}}

	start := time.Now()
	_, err := d.Spawn(context.Background(), testRequest(t, "/bin/true"), 200*time.Millisecond)
	assert.ErrorIs(t, err, derrors.ErrLaunchTimeout)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestSpawn_ContextCancelled(t *testing.T) {
	d := &Detacher{Executable: "/bin/sleep", Args: []string{"5"}}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := d.Spawn(ctx, testRequest(t, "/bin/true"), time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSpawn_ShimExitsWithoutReport(t *testing.T) {
	d := &Detacher{Executable: "/bin/true"}
	_, err := d.Spawn(context.Background(), testRequest(t, "/bin/true"), 5*time.Second)
	assert.ErrorIs(t, err, derrors.ErrLaunch)
	assert.Equal(t, derrors.ReasonDetach, derrors.ReasonOf(err))
}

func TestSpawn_SpawnFailure(t *testing.T) {
	d := &Detacher{Executable: filepath.Join(t.TempDir(), "missing-shim")}
	_, err := d.Spawn(context.Background(), testRequest(t, "/bin/true"), time.Second)
	assert.ErrorIs(t, err, derrors.ErrLaunch)
	assert.Equal(t, derrors.ReasonDetach, derrors.ReasonOf(err))
}

// recordAndAck does what the lifecycle controller does with a ready launch.
func recordAndAck(t *testing.T, st *store.Store, l *Launch, req *Request) task.ID {
	t.Helper()
	rep := l.Report
	h := &task.Handle{
		ID:             rep.ID(),
		PID:            rep.PID,
		PGID:           rep.PGID,
		Generation:     rep.Generation,
		ShimPID:        rep.ShimPID,
		ShimGeneration: rep.ShimGeneration,
		Supervised:     req.Supervise,
		Command:        task.Command{Path: req.Path, Args: req.Args},
		Status:         task.Starting(),
		Stdin:          req.Stdin,
		Stdout:         req.Stdout,
		Stderr:         req.Stderr,
		StartedAt:      rep.StartedAt,
		UpdatedAt:      rep.StartedAt,
	}
	require.NoError(t, st.Put(h))
	require.NoError(t, l.Ack())
	return h.ID
}

func waitTerminal(t *testing.T, st *store.Store, id task.ID) *task.Handle {
	t.Helper()
	var h *task.Handle
	require.Eventually(t, func() bool {
		var err error
		h, err = st.Get(id)
		return err == nil && h.Status.IsTerminal()
	}, 15*time.Second, 20*time.Millisecond)
	return h
}

func TestSupervisor_RecordsExitCode(t *testing.T) {
	d := testDetacher(t)
	req := testRequest(t, "/bin/sh", "-c", "sleep 0.2; exit 3")
	req.Supervise = true
	st := store.New(req.StateDir)
	require.NoError(t, st.Init())

	l, err := d.Spawn(context.Background(), req, 10*time.Second)
	require.NoError(t, err)
	id := recordAndAck(t, st, l, req)

	h := waitTerminal(t, st, id)
	assert.Equal(t, task.Exited(3), h.Status)
	require.NotNil(t, h.FinishedAt)
}

func TestSupervisor_MaxRuntime(t *testing.T) {
	d := testDetacher(t)
	// ignores the stop signal, so only SIGKILL ends it
	req := testRequest(t, "/bin/sh", "-c", "trap '' TERM; sleep 30")
	req.Supervise = true
	req.MaxRuntime = 200 * time.Millisecond
	req.Grace = 200 * time.Millisecond
	st := store.New(req.StateDir)
	require.NoError(t, st.Init())

	l, err := d.Spawn(context.Background(), req, 10*time.Second)
	require.NoError(t, err)
	id := recordAndAck(t, st, l, req)

	h := waitTerminal(t, st, id)
	assert.Equal(t, task.Signaled("SIGKILL"), h.Status)
}

func TestSupervisor_Capture(t *testing.T) {
	d := testDetacher(t)
	req := testRequest(t, "/bin/sh", "-c", "printf 0123456789abcdef; printf err >&2")
	req.Supervise = true
	req.Stdout = task.Capture(8)
	req.Stderr = task.Capture(64)
	req.FlushInterval = 50 * time.Millisecond
	st := store.New(req.StateDir)
	require.NoError(t, st.Init())

	l, err := d.Spawn(context.Background(), req, 10*time.Second)
	require.NoError(t, err)
	id := recordAndAck(t, st, l, req)
	waitTerminal(t, st, id)

	out, err := st.GetCapture(id, store.StreamStdout)
	require.NoError(t, err)
	assert.Equal(t, "89abcdef", string(out.Data))
	assert.True(t, out.Truncated)
	assert.Equal(t, int64(8), out.Dropped)

	errOut, err := st.GetCapture(id, store.StreamStderr)
	require.NoError(t, err)
	assert.Equal(t, "err", string(errOut.Data))
}

func TestUnsupervised_ShimLeavesRecordAlone(t *testing.T) {
	d := testDetacher(t)
	req := testRequest(t, "/bin/sleep", "30")
	st := store.New(req.StateDir)
	require.NoError(t, st.Init())

	l, err := d.Spawn(context.Background(), req, 10*time.Second)
	require.NoError(t, err)
	id := recordAndAck(t, st, l, req)
	pid := l.Report.PID
	defer func() { _ = SignalGroup(pid, syscall.SIGKILL) }()

	// the shim is gone, the payload is not
	require.Eventually(t, func() bool {
		return Probe(l.Report.ShimPID, l.Report.ShimGeneration) == Gone
	}, 10*time.Second, 20*time.Millisecond)
	assert.Equal(t, Alive, Probe(pid, l.Report.Generation))

	h, err := st.Get(id)
	require.NoError(t, err)
	assert.Equal(t, task.StateStarting, h.Status.State, "an unsupervised shim must not write the record")
}

func TestProbe(t *testing.T) {
	assert.Equal(t, Gone, Probe(0, 0))
	assert.Equal(t, Gone, Probe(-5, 0))
	// above any configurable pid_max
	assert.Equal(t, Gone, Probe(1<<30, 0))

	if gen, ok := Generation(os.Getpid()); ok {
		assert.Equal(t, Alive, Probe(os.Getpid(), gen))
		assert.Equal(t, Gone, Probe(os.Getpid(), gen+1), "recycled pid must not be trusted")
	}
}

func TestParseSignal(t *testing.T) {
	tests := []struct {
		in      string
		want    syscall.Signal
		wantErr bool
	}{
		{"", unix.SIGTERM, false},
		{"SIGTERM", unix.SIGTERM, false},
		{"TERM", unix.SIGTERM, false},
		{"int", unix.SIGINT, false},
		{"9", unix.SIGKILL, false},
		{" SIGHUP ", unix.SIGHUP, false},
		{"SIGNOPE", 0, true},
		{"-1", 0, true},
		{"0", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSignal(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "SIGKILL", SignalName(unix.SIGKILL))
}

func TestSignalGroup_RefusesInit(t *testing.T) {
	assert.Error(t, SignalGroup(1, unix.SIGTERM))
	assert.Error(t, SignalGroup(0, unix.SIGTERM))
	assert.NoError(t, SignalGroup(1<<30, unix.SIGTERM), "missing group is not an error")
}

func TestRetry(t *testing.T) {
	t.Run("transient errors are retried", func(t *testing.T) {
		calls := 0
		err := Retry{Attempts: 3, Delay: time.Millisecond}.do(context.Background(), func() error {
			calls++
			if calls < 3 {
				return syscall.EAGAIN
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("attempts are bounded", func(t *testing.T) {
		calls := 0
		err := Retry{Attempts: 3, Delay: time.Millisecond}.do(context.Background(), func() error {
			calls++
			return &os.SyscallError{Syscall: "fork", Err: syscall.ENOMEM}
		})
		assert.ErrorIs(t, err, syscall.ENOMEM)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		calls := 0
		err := Retry{Attempts: 3, Delay: time.Millisecond}.do(context.Background(), func() error {
			calls++
			return syscall.ENOENT
		})
		assert.ErrorIs(t, err, syscall.ENOENT)
		assert.Equal(t, 1, calls)
	})

	t.Run("context stops the backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Retry{Attempts: 5, Delay: time.Hour}.do(ctx, func() error { return syscall.EINTR })
		assert.True(t, errors.Is(err, context.Canceled))
		assert.ErrorIs(t, err, syscall.EINTR)
	})
}

func TestReportErr(t *testing.T) {
	rep := failedReport(derrors.Launch(derrors.ReasonNotFound, "/x", errors.New("no such file")))
	assert.Equal(t, ReportFailed, rep.Type)
	assert.Equal(t, "LaunchError", rep.Kind)

	err := rep.Err()
	assert.ErrorIs(t, err, derrors.ErrCommandNotFound)
	assert.Contains(t, err.Error(), "/x: no such file")

	assert.NoError(t, (&Report{Type: ReportReady}).Err())

	// errors without a reason count as detach failures
	assert.Equal(t, string(derrors.ReasonDetach), failedReport(errors.New("boom")).Reason)
}

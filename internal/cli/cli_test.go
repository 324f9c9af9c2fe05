//go:build !windows

package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kokjohn0824/detach/internal/task"
)

// TestMain lets the test binary serve as the shim: the controller re-runs
// its own executable with the shim subcommand.
func TestMain(m *testing.M) {
	if len(os.Args) > 1 && os.Args[1] == shimCommand {
		os.Exit(run(os.Args[1:]))
	}
	os.Exit(m.Run())
}

// testEnv isolates the configuration search and the state directory
func testEnv(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	return filepath.Join(t.TempDir(), "state")
}

func runCLI(t *testing.T, stateDir string, args ...string) (string, string, int) {
	t.Helper()
	resetCommands(rootCmd)
	cfg, ctrl = nil, nil

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}()

	code := run(append([]string{"--state-dir", stateDir}, args...))
	return out.String(), errOut.String(), code
}

// startTask starts argv quietly and returns its id
func startTask(t *testing.T, stateDir string, flags []string, argv ...string) task.ID {
	t.Helper()
	args := append([]string{"start", "-q"}, flags...)
	args = append(args, "--")
	args = append(args, argv...)
	out, errOut, code := runCLI(t, stateDir, args...)
	require.Equal(t, 0, code, "start failed: %s", errOut)

	id, err := task.ParseID(out)
	require.NoError(t, err)
	t.Cleanup(func() {
		runCLI(t, stateDir, "stop", "--grace", "0s", string(id))
	})
	return id
}

func TestConsecutiveRuns(t *testing.T) {
	state := testEnv(t)
	for range 3 {
		id := startTask(t, state, nil, "/bin/true")
		_, errOut, code := runCLI(t, state, "wait", string(id))
		require.Equal(t, 0, code, errOut)
	}
}

func TestStartAndWait_ExitCodeIsMirrored(t *testing.T) {
	state := testEnv(t)
	id := startTask(t, state, nil, "/bin/sh", "-c", "exit 3")

	out, _, code := runCLI(t, state, "wait", string(id))
	assert.Equal(t, 3, code)
	assert.Contains(t, out, "exited(3)")

	out, _, code = runCLI(t, state, "status", "-q", string(id))
	assert.Equal(t, 0, code)
	assert.Equal(t, string(id)+" exited(3)\n", out)
}

func TestStart_CaptureAndLogs(t *testing.T) {
	state := testEnv(t)
	id := startTask(t, state, []string{"--stdout", "capture", "--stderr", "capture:4"},
		"/bin/sh", "-c", "echo hello; printf 'abcdefgh' >&2")

	_, _, code := runCLI(t, state, "wait", string(id))
	require.Equal(t, 0, code)

	out, _, code := runCLI(t, state, "logs", string(id))
	assert.Equal(t, 0, code)
	assert.Equal(t, "hello\n", out)

	out, errOut, code := runCLI(t, state, "logs", "--stream", "stderr", string(id))
	assert.Equal(t, 0, code)
	assert.Equal(t, "efgh", out)
	assert.Contains(t, errOut, "4 byte(s) dropped")
}

func TestStart_LogFileAndFollow(t *testing.T) {
	state := testEnv(t)
	logFile := filepath.Join(t.TempDir(), "task.log")
	id := startTask(t, state, []string{"--log-file", logFile},
		"/bin/sh", "-c", "echo one; sleep 1; echo two >&2")

	out, _, code := runCLI(t, state, "logs", "--follow", string(id))
	assert.Equal(t, 0, code)
	assert.Equal(t, "one\ntwo\n", out)
}

func TestStop_JSON(t *testing.T) {
	state := testEnv(t)
	id := startTask(t, state, nil, "/bin/sleep", "30")

	out, errOut, code := runCLI(t, state, "stop", "-o", "json", string(id))
	require.Equal(t, 0, code, errOut)

	var results []stopResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)
	assert.Equal(t, task.Signaled("SIGTERM"), results[0].Status)
}

func TestStop_Several(t *testing.T) {
	state := testEnv(t)
	a := startTask(t, state, nil, "/bin/sleep", "30")
	b := startTask(t, state, nil, "/bin/sleep", "30")

	out, errOut, code := runCLI(t, state, "stop", "-q", string(a), string(b), "1-1")
	assert.Equal(t, 1, code, "the unknown id must fail the command")
	assert.Contains(t, out, string(a)+" signaled(SIGTERM)")
	assert.Contains(t, out, string(b)+" signaled(SIGTERM)")
	assert.Contains(t, errOut, "1 task(s) could not be stopped")
}

func TestStop_NoIDWithoutTerminal(t *testing.T) {
	state := testEnv(t)
	_, errOut, code := runCLI(t, state, "stop")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "a task id is required")
}

func TestList(t *testing.T) {
	state := testEnv(t)

	out, _, code := runCLI(t, state, "list", "-o", "json")
	require.Equal(t, 0, code)
	assert.JSONEq(t, "[]", out)

	id := startTask(t, state, nil, "/bin/sleep", "30")
	require.NoError(t, os.WriteFile(filepath.Join(state, "tasks", "99-1.json"), []byte("{"), 0600))

	out, errOut, code := runCLI(t, state, "list", "-o", "yaml")
	require.Equal(t, 0, code)
	assert.Contains(t, errOut, "skipping unreadable record")

	var handles []task.Handle
	require.NoError(t, yaml.Unmarshal([]byte(out), &handles))
	require.Len(t, handles, 1)
	assert.Equal(t, id, handles[0].ID)
	assert.Equal(t, task.StateRunning, handles[0].Status.State)

	out, _, code = runCLI(t, state, "list")
	require.Equal(t, 0, code)
	assert.Contains(t, out, string(id))
	assert.Contains(t, out, "/bin/sleep 30")
}

func TestRm(t *testing.T) {
	state := testEnv(t)
	id := startTask(t, state, nil, "/bin/sleep", "30")

	_, errOut, code := runCLI(t, state, "rm", string(id))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "--force")

	_, errOut, code = runCLI(t, state, "rm", "--force", "--yes", string(id))
	assert.Equal(t, 0, code, errOut)

	_, errOut, code = runCLI(t, state, "status", string(id))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "no task with id")
}

func TestWait_Timeout(t *testing.T) {
	state := testEnv(t)
	id := startTask(t, state, nil, "/bin/sleep", "30")

	start := time.Now()
	_, errOut, code := runCLI(t, state, "wait", "--timeout", "200ms", string(id))
	assert.Equal(t, exitWaitTimeout, code)
	assert.NotEmpty(t, errOut)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestStart_Errors(t *testing.T) {
	state := testEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing executable", []string{"start", "--", "/nonexistent/binary"}, "not found"},
		{"bad target", []string{"start", "--stdout", "socket:x", "--", "/bin/true"}, "unknown target"},
		{"log file conflict", []string{"start", "--log-file", "x.log", "--stdout", "discard", "--", "/bin/true"}, "--log-file"},
		{"bad env", []string{"start", "-e", "NOVALUE", "--", "/bin/true"}, "KEY=VALUE"},
		{"capture unsupervised", []string{"start", "--no-supervise", "--stdout", "capture", "--", "/bin/true"}, "supervised"},
		{"no command", []string{"start"}, "requires at least 1 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errOut, code := runCLI(t, state, tt.args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, errOut, tt.want)
		})
	}

	out, _, code := runCLI(t, state, "list", "-q")
	require.Equal(t, 0, code)
	assert.Empty(t, out, "failed launches must not leave records")
}

func TestInvalidOutputFormat(t *testing.T) {
	state := testEnv(t)
	_, errOut, code := runCLI(t, state, "list", "-o", "xml")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid output format")
}

func TestConfigShow(t *testing.T) {
	state := testEnv(t)
	t.Setenv("DETACH_GRACE_PERIOD", "3s")

	out, _, code := runCLI(t, state, "config", "show", "-o", "yaml")
	require.Equal(t, 0, code)

	var settings map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &settings))
	assert.Equal(t, state, settings["state_dir"])
	assert.Equal(t, "3s", settings["grace_period"])
}

func TestConfigInit(t *testing.T) {
	state := testEnv(t)
	path := filepath.Join(t.TempDir(), "detach.yaml")

	_, _, code := runCLI(t, state, "config", "init", path)
	require.Equal(t, 0, code)
	require.FileExists(t, path)

	// stdin is not a terminal: refuse to overwrite without --force
	_, _, code = runCLI(t, state, "config", "init", path)
	assert.Equal(t, 1, code)
	_, _, code = runCLI(t, state, "config", "init", "--force", path)
	assert.Equal(t, 0, code)
}

func TestVersion(t *testing.T) {
	state := testEnv(t)
	out, _, code := runCLI(t, state, "version")
	assert.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(out, "detach "+Version))
}

func TestCompletion(t *testing.T) {
	state := testEnv(t)
	out, _, code := runCLI(t, state, "completion", "bash")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "detach")

	_, _, code = runCLI(t, state, "completion", "tcsh")
	assert.Equal(t, 1, code)
}

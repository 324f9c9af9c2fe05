// Package i18n centralizes all user-facing strings of the detach tool.
// Keeping them in one place keeps the command files readable and makes a
// future translation a matter of swapping this file.
package i18n

// Common messages
const (
	MsgCancelled        = "cancelled"
	MsgSelectRange      = "select (1-%d): "
	MsgInvalidSelection = "invalid selection: %s"
	MsgNoOptions        = "no options to select"
)

// Command descriptions
const (
	// Root command
	CmdRootShort = "Launch and manage detached background tasks"
	CmdRootLong  = `detach launches commands that survive the terminal and the process that
started them, and keeps a durable handle for each one so any later
invocation can query, wait for, or stop it.

  • start a detached task with its output discarded, written to a file,
    or captured into a bounded buffer (start)
  • inspect tasks started by any invocation (status, list, logs)
  • stop a task gracefully with a forceful fallback (stop)
  • block until a task finishes (wait)`

	CmdVersionShort = "Show version information"

	CmdStartShort = "Start a command as a detached task"
	CmdStartLong  = `Start a command in a new session, detached from this terminal.

The command does not need to be a shell builtin; use "sh -c" for pipelines.
Standard streams are routed with --stdin/--stdout/--stderr:

  discard            the null device (default)
  file:<path>        truncate and write to <path>
  append:<path>      append to <path>
  capture[:<bytes>]  keep the last <bytes> in a buffer readable with "detach logs"

start returns once the command has been executed, printing the task id.`

	CmdStatusShort = "Show the status of a task"
	CmdStatusLong  = `Probe a task and print its status. A task that exited since the last
check is reconciled and its terminal status recorded.`

	CmdStopShort = "Stop one or more tasks"
	CmdStopLong  = `Send the task's stop signal (SIGTERM unless configured otherwise), wait
for the grace period, then send SIGKILL. Without an id and on a terminal,
an interactive picker lists the running tasks.`

	CmdWaitShort = "Wait for a task to finish"
	CmdWaitLong  = `Block until the task reaches a terminal status or the timeout elapses.
The exit code of detach mirrors the exit code of the task when it exited.`

	CmdListShort = "List known tasks"
	CmdListLong  = `List every task recorded in the state directory, including tasks started
by other invocations. Unreadable records are reported but do not hide the
others.`

	CmdRmShort = "Remove task records"
	CmdRmLong  = `Remove the record and captured output of finished tasks. A task that is
still running is refused unless --force is given, which stops it first.`

	CmdLogsShort = "Show the output of a task"
	CmdLogsLong  = `Print the captured output of a task, or the contents of its output file
when the stream was redirected to a file. --follow keeps printing new
output of a file sink until the task finishes.`

	CmdPruneShort = "Remove finished tasks older than the retention period"

	CmdConfigShort     = "Manage configuration"
	CmdConfigShowShort = "Show the effective configuration"
	CmdConfigInitShort = "Write a default configuration file"

	CmdCompletionShort = "Generate shell completion scripts"

	CmdShimShort = "Internal: intermediate process of a detached launch"
)

// Flag descriptions
const (
	FlagConfig  = "config file (default: ./.detach.yaml, ~/.detach.yaml)"
	FlagVerbose = "verbose logging"
	FlagDebug   = "debug logging"
	FlagQuiet   = "print only ids and errors"
	FlagOutput  = "output format: text, json, yaml"
	FlagState   = "state directory holding task records"

	FlagStdin          = "stdin target: discard or file:<path>"
	FlagStdout         = "stdout target: discard, file:<path>, append:<path>, capture[:<bytes>]"
	FlagStderr         = "stderr target: discard, file:<path>, append:<path>, capture[:<bytes>]"
	FlagLogFile        = "append both stdout and stderr to this file"
	FlagDir            = "working directory of the task (default: current directory)"
	FlagEnv            = "extra environment variable KEY=VALUE (repeatable)"
	FlagStartupTimeout = "maximum time to wait for the task to start"
	FlagMaxRuntime     = "stop the task after this long (0 = no limit)"
	FlagStopSignal     = "signal sent first when stopping the task"
	FlagNoSupervise    = "do not keep a supervisor; exit status will not be observable"
	FlagGrace          = "time to wait after the stop signal before SIGKILL"
	FlagAll            = "apply to every matching task"
	FlagWaitTimeout    = "give up after this long (0 = wait forever)"
	FlagForce          = "stop running tasks before removing them"
	FlagYes            = "do not ask for confirmation"
	FlagStream         = "stream to show: stdout or stderr"
	FlagFollow         = "keep printing new output until the task finishes"
	FlagRunning        = "only show live tasks"
)

// UI text
const (
	UITaskDetail   = "Task %s"
	UISelectStop   = "Select a task to stop"
	UIConfigHeader = "Configuration"

	ColID      = "ID"
	ColPID     = "PID"
	ColStatus  = "STATUS"
	ColStarted = "STARTED"
	ColCommand = "COMMAND"

	LabelCommand  = "Command:  %s"
	LabelPID      = "PID:      %d (group %d)"
	LabelStatus   = "Status:   %s"
	LabelStarted  = "Started:  %s (%s ago)"
	LabelFinished = "Finished: %s"
	LabelStdout   = "Stdout:   %s"
	LabelStderr   = "Stderr:   %s"
	LabelShim     = "Shim:     %d"
)

// Status and result messages
const (
	MsgStarted          = "started %s (pid %d)"
	MsgStopped          = "stopped %s: %s"
	MsgWaiting          = "waiting for %s"
	MsgFinished         = "%s finished: %s"
	MsgRemoved          = "removed %s"
	MsgPruned           = "pruned %d task(s)"
	MsgNoTasks          = "no tasks recorded in %s"
	MsgNoRunningTasks   = "no running tasks"
	MsgCorruptRecord    = "skipping unreadable record: %v"
	MsgOutputTruncated  = "output truncated: %d byte(s) dropped"
	MsgNoOutput         = "%s: no %s output captured"
	MsgConfigWritten    = "configuration written to %s"
	MsgConfirmRemove    = "Remove running task %s?"
	MsgStopFailed       = "failed to stop %s: %v"
	MsgStreamNotLogged  = "%s: %s is routed to %s"
	MsgRetentionOff     = "retention is disabled; set retention in the configuration to prune"
	MsgUnknownStatusFmt = "%s: liveness could not be determined"
)

// Errors surfaced by the CLI
const (
	ErrLoadConfigFailed = "failed to load configuration: %w"
	ErrInitStoreFailed  = "failed to initialize state directory: %w"
	ErrExecutablePath   = "failed to resolve own executable: %w"
	ErrInvalidOutput    = "invalid output format: %s"
	ErrInvalidStream    = "invalid stream %q: use stdout or stderr"
	ErrMissingCommand   = "a command to run is required"
	ErrLogFileConflict  = "--log-file cannot be combined with --stdout or --stderr"
	ErrIDRequired       = "a task id is required"
	ErrInvalidEnv       = "invalid environment entry %q: expected KEY=VALUE"
	ErrStopSomeFailed   = "%d task(s) could not be stopped"
)

// Error operation and message templates used by the errors package
const (
	ErrOpStart  = "start"
	ErrOpStatus = "status"
	ErrOpStop   = "stop"
	ErrOpWait   = "wait"
	ErrOpRemove = "remove"
	ErrOpOutput = "output"
	ErrOpStore  = "store"

	ErrMsgLaunchTimeout   = "task did not report readiness within %s"
	ErrMsgDuplicateID     = "a live task with id %s already exists"
	ErrMsgNotFound        = "no task with id %s"
	ErrMsgTimeout         = "task %s did not finish within %s"
	ErrMsgStoreCorruption = "unreadable task record %s"
	ErrMsgTaskRunning     = "task %s is still running"
	ErrMsgNotCaptured     = "stream %s of task %s is not captured"
	ErrMsgCaptureNeedsSup = "captured output requires a supervised task"
	ErrMsgRuntimeNeedsSup = "a maximum runtime requires a supervised task"
)

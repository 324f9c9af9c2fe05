package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kokjohn0824/detach/internal/i18n"
	"github.com/kokjohn0824/detach/internal/lifecycle"
	"github.com/kokjohn0824/detach/internal/task"
	"github.com/kokjohn0824/detach/internal/ui"
)

var (
	startStdin          string
	startStdout         string
	startStderr         string
	startLogFile        string
	startDir            string
	startEnv            []string
	startStartupTimeout time.Duration
	startMaxRuntime     time.Duration
	startStopSignal     string
	startNoSupervise    bool
)

var startCmd = &cobra.Command{
	Use:   "start [flags] -- command [args...]",
	Short: i18n.CmdStartShort,
	Long:  i18n.CmdStartLong,
	Example: `  detach start -- python3 -m http.server 8080
  detach start --stdout capture -- ./build.sh
  detach start --log-file relay.log --max-runtime 2h -- ./relay --port 9000`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStart,
}

func init() {
	f := startCmd.Flags()
	// everything after the command belongs to the command
	f.SetInterspersed(false)

	f.StringVar(&startStdin, "stdin", "discard", i18n.FlagStdin)
	f.StringVar(&startStdout, "stdout", "discard", i18n.FlagStdout)
	f.StringVar(&startStderr, "stderr", "discard", i18n.FlagStderr)
	f.StringVar(&startLogFile, "log-file", "", i18n.FlagLogFile)
	f.StringVarP(&startDir, "dir", "C", "", i18n.FlagDir)
	f.StringArrayVarP(&startEnv, "env", "e", nil, i18n.FlagEnv)
	f.DurationVar(&startStartupTimeout, "startup-timeout", 0, i18n.FlagStartupTimeout)
	f.DurationVar(&startMaxRuntime, "max-runtime", 0, i18n.FlagMaxRuntime)
	f.StringVar(&startStopSignal, "stop-signal", "", i18n.FlagStopSignal)
	f.BoolVar(&startNoSupervise, "no-supervise", false, i18n.FlagNoSupervise)

	rootCmd.AddCommand(startCmd)
}

// parseTarget parses a stream flag. A bare "capture" leaves the limit to
// the configuration.
func parseTarget(s string) (task.Target, error) {
	if s == string(task.TargetCapture) {
		return task.Target{Kind: task.TargetCapture}, nil
	}
	return task.ParseTarget(s)
}

// buildLaunchRequest turns the start flags into a launch request
func buildLaunchRequest(cmd *cobra.Command, args []string) (lifecycle.LaunchRequest, error) {
	req := lifecycle.LaunchRequest{
		Command:        args[0],
		Args:           args[1:],
		Dir:            startDir,
		StartupTimeout: startStartupTimeout,
		MaxRuntime:     startMaxRuntime,
		StopSignal:     startStopSignal,
	}

	var err error
	if req.Stdin, err = parseTarget(startStdin); err != nil {
		return req, err
	}
	if req.Stdout, err = parseTarget(startStdout); err != nil {
		return req, err
	}
	if req.Stderr, err = parseTarget(startStderr); err != nil {
		return req, err
	}
	if startLogFile != "" {
		if cmd.Flags().Changed("stdout") || cmd.Flags().Changed("stderr") {
			return req, errors.New(i18n.ErrLogFileConflict)
		}
		req.Stdout = task.ToFile(startLogFile, true)
		req.Stderr = req.Stdout
	}

	env := os.Environ()
	for _, kv := range startEnv {
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			return req, fmt.Errorf(i18n.ErrInvalidEnv, kv)
		}
		env = append(env, kv)
	}
	req.Env = env

	if cmd.Flags().Changed("no-supervise") {
		supervise := !startNoSupervise
		req.Supervise = &supervise
	}
	return req, nil
}

func runStart(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	req, err := buildLaunchRequest(cmd, args)
	if err != nil {
		return err
	}

	h, err := ctrl.Start(cmd.Context(), req)
	if err != nil {
		return err
	}

	switch {
	case structured():
		return printData(w, h)
	case quiet:
		fmt.Fprintln(w, h.ID)
	default:
		ui.PrintSuccess(w, fmt.Sprintf(i18n.MsgStarted, h.ID, h.PID))
	}
	return nil
}

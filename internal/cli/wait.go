package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kokjohn0824/detach/internal/detach"
	derrors "github.com/kokjohn0824/detach/internal/errors"
	"github.com/kokjohn0824/detach/internal/i18n"
	"github.com/kokjohn0824/detach/internal/task"
	"github.com/kokjohn0824/detach/internal/ui"
)

// exit code of wait when the task is still running at the timeout, as
// timeout(1) does
const exitWaitTimeout = 124

var waitTimeout time.Duration

var waitCmd = &cobra.Command{
	Use:               "wait <id>",
	Short:             i18n.CmdWaitShort,
	Long:              i18n.CmdWaitLong,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeTaskIDs,
	RunE:              runWait,
}

func init() {
	waitCmd.Flags().DurationVarP(&waitTimeout, "timeout", "t", 0, i18n.FlagWaitTimeout)

	rootCmd.AddCommand(waitCmd)
}

func runWait(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	id := task.ID(args[0])

	var spinner *ui.Spinner
	if !structured() && !quiet && term.IsTerminal(int(os.Stderr.Fd())) {
		spinner = ui.NewSpinner(fmt.Sprintf(i18n.MsgWaiting, id), cmd.ErrOrStderr())
		spinner.Start()
		defer spinner.Stop()
	}

	st, err := ctrl.Wait(cmd.Context(), id, waitTimeout)
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		if errors.Is(err, derrors.ErrTimeout) {
			ui.PrintWarning(cmd.ErrOrStderr(), err.Error())
			return &exitCodeError{code: exitWaitTimeout}
		}
		return err
	}

	switch {
	case structured():
		if err := printData(w, stopResult{ID: id, Status: st}); err != nil {
			return err
		}
	case quiet:
		fmt.Fprintln(w, st)
	default:
		ui.PrintInfo(w, fmt.Sprintf(i18n.MsgFinished, id, ui.RenderStatus(st)))
	}

	if code := exitCodeOf(st); code != 0 {
		return &exitCodeError{code: code}
	}
	return nil
}

// exitCodeOf maps a terminal status to the exit code a shell would report
// for it. An unobserved exit maps to 0.
func exitCodeOf(st task.Status) int {
	switch st.State {
	case task.StateExited:
		return max(st.ExitCode, 0)
	case task.StateSignaled:
		if sig, err := detach.ParseSignal(st.Signal); err == nil {
			return 128 + int(sig)
		}
		return 1
	default:
		return 1
	}
}

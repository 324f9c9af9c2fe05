package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kokjohn0824/detach/internal/i18n"
	"github.com/kokjohn0824/detach/internal/store"
	"github.com/kokjohn0824/detach/internal/task"
	"github.com/kokjohn0824/detach/internal/ui"
)

// followInterval is how often --follow checks a file sink for new output
const followInterval = 500 * time.Millisecond

var (
	logsStream string
	logsFollow bool
)

var logsCmd = &cobra.Command{
	Use:               "logs <id>",
	Short:             i18n.CmdLogsShort,
	Long:              i18n.CmdLogsLong,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeTaskIDs,
	RunE:              runLogs,
}

func init() {
	logsCmd.Flags().StringVarP(&logsStream, "stream", "s", store.StreamStdout, i18n.FlagStream)
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, i18n.FlagFollow)

	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	id := task.ID(args[0])

	h, err := ctrl.Inspect(id)
	if err != nil {
		return err
	}

	var target task.Target
	switch logsStream {
	case store.StreamStdout:
		target = h.Stdout
	case store.StreamStderr:
		target = h.Stderr
	default:
		return fmt.Errorf(i18n.ErrInvalidStream, logsStream)
	}

	switch target.Kind {
	case task.TargetCapture:
		capture, err := ctrl.Output(id, logsStream)
		if err != nil {
			return err
		}
		if len(capture.Data) == 0 && !quiet {
			ui.PrintInfo(cmd.ErrOrStderr(), fmt.Sprintf(i18n.MsgNoOutput, id, logsStream))
		}
		if _, err := w.Write(capture.Data); err != nil {
			return err
		}
		if capture.Truncated && !quiet {
			ui.PrintWarning(cmd.ErrOrStderr(), fmt.Sprintf(i18n.MsgOutputTruncated, capture.Dropped))
		}
		return nil
	case task.TargetFile:
		if logsFollow {
			return followFile(cmd.Context(), w, target.Path, id)
		}
		f, err := os.Open(target.Path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	default:
		ui.PrintWarning(cmd.ErrOrStderr(), fmt.Sprintf(i18n.MsgStreamNotLogged, id, logsStream, target.OrDiscard()))
		return nil
	}
}

// followFile copies path to w as it grows until the task is terminal or
// ctx is done.
func followFile(ctx context.Context, w io.Writer, path string, id task.ID) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ticker := time.NewTicker(followInterval)
	defer ticker.Stop()
	for {
		if _, err := io.Copy(w, f); err != nil {
			return err
		}

		st, err := ctrl.Status(id)
		if err != nil {
			return err
		}
		if st.IsTerminal() {
			// whatever was written before the exit
			_, err := io.Copy(w, f)
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kokjohn0824/detach/internal/i18n"
	"github.com/kokjohn0824/detach/internal/task"
)

var statusCmd = &cobra.Command{
	Use:               "status <id>...",
	Short:             i18n.CmdStatusShort,
	Long:              i18n.CmdStatusLong,
	Args:              cobra.MinimumNArgs(1),
	ValidArgsFunction: completeTaskIDs,
	RunE:              runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	handles := make([]*task.Handle, 0, len(args))
	for _, arg := range args {
		h, err := ctrl.Inspect(task.ID(arg))
		if err != nil {
			return err
		}
		handles = append(handles, h)
	}

	if structured() {
		if len(handles) == 1 {
			return printData(w, handles[0])
		}
		return printData(w, handles)
	}

	now := time.Now()
	for i, h := range handles {
		if quiet {
			fmt.Fprintf(w, "%s %s\n", h.ID, h.Status)
			continue
		}
		if i > 0 {
			fmt.Fprintln(w)
		}
		printHandle(w, h, now)
	}
	return nil
}

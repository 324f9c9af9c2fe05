package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kokjohn0824/detach/internal/i18n"
	"github.com/kokjohn0824/detach/internal/task"
	"github.com/kokjohn0824/detach/internal/ui"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: i18n.CmdPruneShort,
	Args:  cobra.NoArgs,
	RunE:  runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	if ctrl.Store().Retention() <= 0 {
		ui.PrintWarning(cmd.ErrOrStderr(), i18n.MsgRetentionOff)
		return nil
	}

	pruned, err := ctrl.Prune(cmd.Context())
	if err != nil {
		return err
	}

	if pruned == nil {
		pruned = []task.ID{}
	}

	switch {
	case structured():
		return printData(w, pruned)
	case quiet:
		for _, id := range pruned {
			fmt.Fprintln(w, id)
		}
	default:
		ui.PrintSuccess(w, fmt.Sprintf(i18n.MsgPruned, len(pruned)))
	}
	return nil
}

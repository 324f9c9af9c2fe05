package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	derrors "github.com/kokjohn0824/detach/internal/errors"
	"github.com/kokjohn0824/detach/internal/i18n"
	"github.com/kokjohn0824/detach/internal/task"
	"github.com/kokjohn0824/detach/internal/ui"
)

var (
	rmForce bool
	rmYes   bool
)

var rmCmd = &cobra.Command{
	Use:               "rm <id>...",
	Aliases:           []string{"remove"},
	Short:             i18n.CmdRmShort,
	Long:              i18n.CmdRmLong,
	Args:              cobra.MinimumNArgs(1),
	ValidArgsFunction: completeTaskIDs,
	RunE:              runRm,
}

func init() {
	rmCmd.Flags().BoolVarP(&rmForce, "force", "f", false, i18n.FlagForce)
	rmCmd.Flags().BoolVarP(&rmYes, "yes", "y", false, i18n.FlagYes)

	rootCmd.AddCommand(rmCmd)
}

func runRm(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	prompt := ui.NewPrompt(os.Stdin, cmd.ErrOrStderr())

	for _, arg := range args {
		id := task.ID(arg)

		if rmForce && !rmYes && prompt.Interactive() {
			h, err := ctrl.Inspect(id)
			if err != nil {
				return err
			}
			if !h.Status.IsTerminal() {
				ok, err := prompt.Confirm(fmt.Sprintf(i18n.MsgConfirmRemove, id), false)
				if err != nil {
					return err
				}
				if !ok {
					ui.PrintInfo(w, i18n.MsgCancelled)
					continue
				}
			}
		}

		if err := ctrl.Remove(cmd.Context(), id, rmForce); err != nil {
			if derrors.KindOf(err) == derrors.KindInvalid && !rmForce {
				return fmt.Errorf("%w (use --force)", err)
			}
			return err
		}
		if quiet {
			fmt.Fprintln(w, id)
		} else {
			ui.PrintSuccess(w, fmt.Sprintf(i18n.MsgRemoved, id))
		}
	}
	return nil
}

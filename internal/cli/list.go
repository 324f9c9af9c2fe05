package cli

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kokjohn0824/detach/internal/i18n"
	"github.com/kokjohn0824/detach/internal/task"
	"github.com/kokjohn0824/detach/internal/ui"
)

var listRunning bool

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "ps"},
	Short:   i18n.CmdListShort,
	Long:    i18n.CmdListLong,
	Args:    cobra.NoArgs,
	RunE:    runList,
}

func init() {
	listCmd.Flags().BoolVar(&listRunning, "running", false, i18n.FlagRunning)

	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	errw := cmd.ErrOrStderr()

	var handles []*task.Handle
	for h, err := range ctrl.List(cmd.Context()) {
		if err != nil {
			if ctxErr := cmd.Context().Err(); ctxErr != nil {
				return ctxErr
			}
			ui.PrintWarning(errw, fmt.Sprintf(i18n.MsgCorruptRecord, err))
			continue
		}
		if listRunning && h.Status.IsTerminal() {
			continue
		}
		handles = append(handles, h)
	}
	slices.SortFunc(handles, func(a, b *task.Handle) int {
		return a.StartedAt.Compare(b.StartedAt)
	})

	if structured() {
		if handles == nil {
			handles = []*task.Handle{}
		}
		return printData(w, handles)
	}
	if quiet {
		for _, h := range handles {
			fmt.Fprintln(w, h.ID)
		}
		return nil
	}
	if len(handles) == 0 {
		ui.PrintInfo(w, fmt.Sprintf(i18n.MsgNoTasks, ctrl.Store().Root()))
		return nil
	}

	now := time.Now()
	taskTable(handles, now).Render(w)

	summary := ui.NewStatusSummary()
	for _, h := range handles {
		summary.Add(h.Status)
	}
	fmt.Fprintln(w)
	summary.Render(w)
	return nil
}

// completeTaskIDs offers the ids of recorded tasks
func completeTaskIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if ctrl == nil {
		if err := setup(); err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
	}
	var ids []string
	for h, err := range ctrl.Store().List() {
		if err != nil || slices.Contains(args, string(h.ID)) {
			continue
		}
		if strings.HasPrefix(string(h.ID), toComplete) {
			ids = append(ids, string(h.ID)+"\t"+ui.Truncate(h.Command.String(), 40))
		}
	}
	return ids, cobra.ShellCompDirectiveNoFileComp
}

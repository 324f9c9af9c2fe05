package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kokjohn0824/detach/internal/i18n"
	"github.com/kokjohn0824/detach/internal/task"
	"github.com/kokjohn0824/detach/internal/ui"
)

// maxParallelStops bounds how many tasks are stopped at once
const maxParallelStops = 16

var (
	stopGrace time.Duration
	stopAll   bool
)

var stopCmd = &cobra.Command{
	Use:               "stop [id...]",
	Short:             i18n.CmdStopShort,
	Long:              i18n.CmdStopLong,
	ValidArgsFunction: completeTaskIDs,
	RunE:              runStop,
}

func init() {
	stopCmd.Flags().DurationVar(&stopGrace, "grace", -1, i18n.FlagGrace)
	stopCmd.Flags().BoolVarP(&stopAll, "all", "a", false, i18n.FlagAll)

	rootCmd.AddCommand(stopCmd)
}

// stopResult is the outcome of stopping one task
type stopResult struct {
	ID     task.ID     `json:"id" yaml:"id"`
	Status task.Status `json:"status" yaml:"status"`
	Error  string      `json:"error,omitempty" yaml:"error,omitempty"`
}

func runStop(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	ids, err := stopTargets(cmd, args)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		ui.PrintInfo(w, i18n.MsgNoRunningTasks)
		return nil
	}

	results := make([]stopResult, len(ids))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(maxParallelStops)
	for i, id := range ids {
		g.Go(func() error {
			st, err := ctrl.Stop(cmd.Context(), id, stopGrace)
			results[i] = stopResult{ID: id, Status: st}
			if err != nil {
				results[i].Error = err.Error()
			}
			if structured() {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			printStopResult(w, results[i])
			return nil
		})
	}
	// per-task failures are kept in results
	_ = g.Wait()
	if err := cmd.Context().Err(); err != nil {
		return err
	}

	if structured() {
		if err := printData(w, results); err != nil {
			return err
		}
	}

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf(i18n.ErrStopSomeFailed, failed)
	}
	return nil
}

func printStopResult(w io.Writer, r stopResult) {
	switch {
	case r.Error != "":
		ui.PrintError(w, fmt.Sprintf(i18n.MsgStopFailed, r.ID, r.Error))
	case quiet:
		fmt.Fprintf(w, "%s %s\n", r.ID, r.Status)
	default:
		ui.PrintSuccess(w, fmt.Sprintf(i18n.MsgStopped, r.ID, ui.RenderStatus(r.Status)))
	}
}

// stopTargets resolves the ids to stop: the arguments, every running task
// with --all, or the task picked interactively.
func stopTargets(cmd *cobra.Command, args []string) ([]task.ID, error) {
	if len(args) > 0 {
		ids := make([]task.ID, len(args))
		for i, a := range args {
			ids[i] = task.ID(a)
		}
		return ids, nil
	}

	prompt := ui.NewPrompt(os.Stdin, os.Stderr)
	if !stopAll && !prompt.Interactive() {
		return nil, errors.New(i18n.ErrIDRequired)
	}

	running, err := liveTasks(cmd)
	if err != nil {
		return nil, err
	}
	if stopAll || len(running) == 0 {
		ids := make([]task.ID, len(running))
		for i, h := range running {
			ids[i] = h.ID
		}
		return ids, nil
	}

	options := make([]ui.Option, len(running))
	for i, h := range running {
		options[i] = ui.Option{Label: string(h.ID), Detail: h.Command.String()}
	}
	idx, err := prompt.Select(i18n.UISelectStop, options)
	if err != nil {
		return nil, err
	}
	return []task.ID{running[idx].ID}, nil
}

// liveTasks lists tasks that are not terminal. Unreadable records are
// reported and skipped.
func liveTasks(cmd *cobra.Command) ([]*task.Handle, error) {
	var live []*task.Handle
	for h, err := range ctrl.List(cmd.Context()) {
		if err != nil {
			if ctxErr := cmd.Context().Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Warn(fmt.Sprintf(i18n.MsgCorruptRecord, err))
			continue
		}
		if !h.Status.IsTerminal() {
			live = append(live, h)
		}
	}
	return live, nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kokjohn0824/detach/internal/i18n"
	"github.com/kokjohn0824/detach/internal/task"
	"github.com/kokjohn0824/detach/internal/ui"
)

// Output formats
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

func validateOutput(format string) error {
	switch format {
	case outputText, outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf(i18n.ErrInvalidOutput, format)
	}
}

// structured reports whether results are printed as data instead of text
func structured() bool {
	return outputFormat == outputJSON || outputFormat == outputYAML
}

// printData writes v as JSON or YAML
func printData(w io.Writer, v any) error {
	switch outputFormat {
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

// printHandle renders the detail view of one task
func printHandle(w io.Writer, h *task.Handle, now time.Time) {
	ui.PrintHeader(w, fmt.Sprintf(i18n.UITaskDetail, h.ID))
	fmt.Fprintf(w, i18n.LabelCommand+"\n", h.Command)
	fmt.Fprintf(w, i18n.LabelPID+"\n", h.PID, h.PGID)
	fmt.Fprintf(w, i18n.LabelStatus+"\n", ui.RenderStatus(h.Status))
	fmt.Fprintf(w, i18n.LabelStarted+"\n", h.StartedAt.Local().Format(time.DateTime), age(now, h.StartedAt))
	if h.FinishedAt != nil {
		fmt.Fprintf(w, i18n.LabelFinished+"\n", h.FinishedAt.Local().Format(time.DateTime))
	}
	fmt.Fprintf(w, i18n.LabelStdout+"\n", h.Stdout.OrDiscard())
	fmt.Fprintf(w, i18n.LabelStderr+"\n", h.Stderr.OrDiscard())
	if h.ShimPID > 0 {
		fmt.Fprintf(w, i18n.LabelShim+"\n", h.ShimPID)
	}
}

// taskTable renders tasks one per row
func taskTable(handles []*task.Handle, now time.Time) *ui.Table {
	table := ui.NewTable(i18n.ColID, i18n.ColPID, i18n.ColStatus, i18n.ColStarted, i18n.ColCommand)
	for _, h := range handles {
		table.AddRow(
			string(h.ID),
			fmt.Sprint(h.PID),
			ui.RenderStatus(h.Status),
			age(now, h.StartedAt),
			ui.Truncate(h.Command.String(), 48),
		)
	}
	return table
}

// age renders how long ago t was in its largest whole unit
func age(now, t time.Time) string {
	d := max(now.Sub(t), 0)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

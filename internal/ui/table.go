package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kokjohn0824/detach/internal/task"
)

// Table represents a simple table renderer
type Table struct {
	headers []string
	rows    [][]string
	widths  []int
}

// NewTable creates a new table with the given headers
func NewTable(headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	return &Table{
		headers: headers,
		rows:    make([][]string, 0),
		widths:  widths,
	}
}

// AddRow adds a row to the table. Cells may be styled.
func (t *Table) AddRow(cells ...string) {
	// Pad or truncate cells to match header count
	row := make([]string, len(t.headers))
	for i := range row {
		if i < len(cells) {
			row[i] = cells[i]
			t.widths[i] = max(t.widths[i], lipgloss.Width(cells[i]))
		}
	}
	t.rows = append(t.rows, row)
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// Render renders the table to the writer
func (t *Table) Render(w io.Writer) {
	if len(t.headers) == 0 {
		return
	}

	headerCells := make([]string, len(t.headers))
	for i, h := range t.headers {
		headerCells[i] = StyleBold.Render(padRight(h, t.widths[i]))
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(headerCells, "  "), " "))

	sepParts := make([]string, len(t.widths))
	for i, w := range t.widths {
		sepParts[i] = strings.Repeat("─", w)
	}
	fmt.Fprintln(w, StyleMuted.Render(strings.Join(sepParts, "──")))

	for _, row := range t.rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = padRight(cell, t.widths[i])
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}

// String returns the table as a string
func (t *Table) String() string {
	var sb strings.Builder
	t.Render(&sb)
	return sb.String()
}

func padRight(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// Truncate shortens s to at most maxLen runes, ending in "..." when there
// is room for it.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// StatusSummary counts tasks per state
type StatusSummary struct {
	counts map[task.State]int
	failed int
	total  int
}

// NewStatusSummary creates an empty summary
func NewStatusSummary() *StatusSummary {
	return &StatusSummary{counts: make(map[task.State]int)}
}

// Add counts one task
func (s *StatusSummary) Add(st task.Status) {
	s.counts[st.State]++
	s.total++
	if st.State == task.StateSignaled || (st.State == task.StateExited && st.ExitCode != 0) {
		s.failed++
	}
}

// Total returns the number of counted tasks
func (s *StatusSummary) Total() int {
	return s.total
}

// Render renders the summary in a box
func (s *StatusSummary) Render(w io.Writer) {
	rows := []struct {
		label string
		state task.State
	}{
		{"Starting:", task.StateStarting},
		{"Running:", task.StateRunning},
		{"Exited:", task.StateExited},
		{"Signaled:", task.StateSignaled},
		{"Unknown:", task.StateUnknown},
	}

	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%s %d\n", StateStyle(r.state).Render(padRight(r.label, 10)), s.counts[r.state])
	}
	b.WriteString(StyleMuted.Render("─────────────"))
	fmt.Fprintf(&b, "\n%s %d", padRight("Failed:", 10), s.failed)
	fmt.Fprintf(&b, "\n%s %d", StyleBold.Render(padRight("Total:", 10)), s.total)

	fmt.Fprintln(w, BoxStyle.Render(b.String()))
}

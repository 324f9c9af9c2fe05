package ui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/kokjohn0824/detach/internal/i18n"
)

const (
	listMinHeight     = 5
	listMaxHeight     = 14
	listDefaultWidth  = 64
	listDefaultHeight = 10
)

// optionItem implements list.Item for the selection list
type optionItem Option

func (i optionItem) FilterValue() string { return i.Label + " " + i.Detail }

// optionDelegate renders each list item on one line
type optionDelegate struct{}

func (d optionDelegate) Height() int                             { return 1 }
func (d optionDelegate) Spacing() int                            { return 0 }
func (d optionDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d optionDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	item, ok := listItem.(optionItem)
	if !ok {
		return
	}
	detail := Truncate(item.Detail, max(m.Width()-lipgloss.Width(item.Label)-6, 0))
	if index == m.Index() {
		fmt.Fprintf(w, "%s %s", StylePrimary.Render("> "+item.Label), StyleHighlight.Render(detail))
		return
	}
	fmt.Fprintf(w, "  %s %s", item.Label, StyleMuted.Render(detail))
}

type listSelectModel struct {
	list        list.Model
	choiceIndex int // -1 = not chosen yet
	cancelled   bool
}

func askSelectList(question string, options []Option, input, output *os.File) (int, error) {
	model := newListSelectModel(question, options, output)
	program := tea.NewProgram(model, tea.WithInput(input), tea.WithOutput(output))
	result, err := program.Run()
	if err != nil {
		return 0, err
	}
	m, ok := result.(listSelectModel)
	if !ok {
		return 0, fmt.Errorf("unexpected list select model: %T", result)
	}
	if m.cancelled || m.choiceIndex < 0 {
		return 0, errors.New(i18n.MsgCancelled)
	}
	return m.choiceIndex, nil
}

func listSize(output *os.File) (int, int) {
	width, height := listDefaultWidth, listDefaultHeight
	if output == nil {
		return width, height
	}
	if w, h, err := term.GetSize(int(output.Fd())); err == nil && w > 0 && h > 0 {
		width = max(w-4, 24)
		height = min(max(h/2, listMinHeight), listMaxHeight)
	}
	return width, height
}

func newListSelectModel(question string, options []Option, output *os.File) listSelectModel {
	items := make([]list.Item, len(options))
	for i, o := range options {
		items[i] = optionItem(o)
	}
	width, height := listSize(output)
	l := list.New(items, optionDelegate{}, width, height)
	l.Title = question
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(len(options) > listMaxHeight)
	l.Styles.Title = StyleTitle
	l.Styles.PaginationStyle = StyleMuted
	l.Styles.HelpStyle = StyleMuted
	return listSelectModel{
		list:        l,
		choiceIndex: -1,
	}
}

func (m listSelectModel) Init() tea.Cmd {
	return nil
}

func (m listSelectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetWidth(msg.Width)
		return m, nil
	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.cancelled = true
			return m, tea.Quit
		case "enter":
			if _, ok := m.list.SelectedItem().(optionItem); ok {
				m.choiceIndex = m.list.GlobalIndex()
			}
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m listSelectModel) View() string {
	if m.choiceIndex >= 0 {
		return ""
	}
	if m.cancelled {
		return StyleMuted.Render("  "+i18n.MsgCancelled) + "\n"
	}
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(m.list.View())
	return b.String()
}

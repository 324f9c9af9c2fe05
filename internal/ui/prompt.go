package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/kokjohn0824/detach/internal/i18n"
)

// Prompt handles interactive user prompts
type Prompt struct {
	reader io.Reader
	writer io.Writer
}

// NewPrompt creates a new prompt handler
func NewPrompt(r io.Reader, w io.Writer) *Prompt {
	return &Prompt{
		reader: r,
		writer: w,
	}
}

// Interactive reports whether both ends of the prompt are terminals
func (p *Prompt) Interactive() bool {
	_, _, ok := terminals(p.reader, p.writer)
	return ok
}

func terminals(reader io.Reader, writer io.Writer) (*os.File, *os.File, bool) {
	input, okInput := reader.(*os.File)
	output, okOutput := writer.(*os.File)
	if !okInput || !okOutput {
		return nil, nil, false
	}
	if !term.IsTerminal(int(input.Fd())) || !term.IsTerminal(int(output.Fd())) {
		return nil, nil, false
	}
	return input, output, true
}

// Confirm asks a yes/no question
func (p *Prompt) Confirm(question string, defaultYes bool) (bool, error) {
	defaultHint := "[y/N]"
	if defaultYes {
		defaultHint = "[Y/n]"
	}

	fmt.Fprintf(p.writer, "%s %s %s ", StyleInfo.Render("?"), question, StyleMuted.Render(defaultHint))

	scanner := bufio.NewScanner(p.reader)
	if scanner.Scan() {
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		default:
			return defaultYes, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, err
	}
	return defaultYes, nil
}

// Option is one choice offered by Select
type Option struct {
	Label  string
	Detail string
}

func (o Option) String() string {
	if o.Detail == "" {
		return o.Label
	}
	return o.Label + "  " + o.Detail
}

// Select asks the user to pick one of options and returns its index.
// On a terminal it shows an interactive list; otherwise it falls back to a
// numbered prompt.
func (p *Prompt) Select(question string, options []Option) (int, error) {
	if len(options) == 0 {
		return 0, errors.New(i18n.MsgNoOptions)
	}
	if input, output, ok := terminals(p.reader, p.writer); ok {
		return askSelectList(question, options, input, output)
	}
	return p.askSelectScanner(question, options)
}

func (p *Prompt) askSelectScanner(question string, options []Option) (int, error) {
	fmt.Fprintf(p.writer, "%s %s\n", StyleInfo.Render("?"), question)
	for i, opt := range options {
		fmt.Fprintf(p.writer, "  %s %s %s\n", StyleMuted.Render(fmt.Sprintf("%d.", i+1)), opt.Label, StyleMuted.Render(opt.Detail))
	}
	fmt.Fprint(p.writer, StyleMuted.Render(fmt.Sprintf("  "+i18n.MsgSelectRange, len(options))))

	scanner := bufio.NewScanner(p.reader)
	if scanner.Scan() {
		answer := strings.TrimSpace(scanner.Text())
		var choice int
		if _, err := fmt.Sscanf(answer, "%d", &choice); err == nil {
			if choice >= 1 && choice <= len(options) {
				return choice - 1, nil
			}
		}
		return 0, fmt.Errorf(i18n.MsgInvalidSelection, answer)
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, io.EOF
}

// Print helpers

// PrintHeader prints a styled header
func PrintHeader(w io.Writer, title string) {
	fmt.Fprintln(w, StyleTitle.Render(title))
}

// PrintSubheader prints a styled subheader
func PrintSubheader(w io.Writer, title string) {
	fmt.Fprintln(w, StyleSubtitle.Render(title))
}

// PrintSuccess prints a success message
func PrintSuccess(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", StyleSuccess.Render("✓"), message)
}

// PrintError prints an error message
func PrintError(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", StyleError.Render("✗"), message)
}

// PrintWarning prints a warning message
func PrintWarning(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", StyleWarning.Render("!"), message)
}

// PrintInfo prints an info message
func PrintInfo(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", StyleInfo.Render("ℹ"), message)
}

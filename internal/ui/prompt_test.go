package ui

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestPromptConfirm(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		defaultYes bool
		want       bool
	}{
		{"yes", "y\n", false, true},
		{"full yes", "YES\n", false, true},
		{"no", "n\n", true, false},
		{"empty takes default no", "\n", false, false},
		{"empty takes default yes", "\n", true, true},
		{"garbage takes default", "maybe\n", false, false},
		{"eof takes default", "", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			p := NewPrompt(strings.NewReader(tt.input), &buf)
			got, err := p.Confirm("Remove running task 42-ab?", tt.defaultYes)
			if err != nil {
				t.Fatalf("Confirm() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Confirm() = %v, want %v", got, tt.want)
			}
			if !strings.Contains(buf.String(), "Remove running task 42-ab?") {
				t.Errorf("question not printed: %q", buf.String())
			}
		})
	}
}

func TestPromptSelectScanner(t *testing.T) {
	options := []Option{
		{Label: "100-a", Detail: "sleep 60"},
		{Label: "200-b", Detail: "python3 -m http.server"},
	}

	var buf bytes.Buffer
	p := NewPrompt(strings.NewReader("2\n"), &buf)
	idx, err := p.Select("Select a task to stop", options)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if idx != 1 {
		t.Errorf("Select() = %d, want 1", idx)
	}
	if !strings.Contains(buf.String(), "python3 -m http.server") {
		t.Errorf("options not printed: %q", buf.String())
	}
	if p.Interactive() {
		t.Error("a buffer is not a terminal")
	}
}

func TestPromptSelectErrors(t *testing.T) {
	options := []Option{{Label: "100-a"}}

	for _, input := range []string{"0\n", "2\n", "x\n"} {
		p := NewPrompt(strings.NewReader(input), io.Discard)
		if _, err := p.Select("pick", options); err == nil {
			t.Errorf("Select() with input %q should fail", input)
		}
	}

	p := NewPrompt(strings.NewReader(""), io.Discard)
	if _, err := p.Select("pick", options); err != io.EOF {
		t.Errorf("Select() at EOF error = %v, want io.EOF", err)
	}
	if _, err := p.Select("pick", nil); err == nil {
		t.Error("Select() without options should fail")
	}
}

func TestOptionString(t *testing.T) {
	if got := (Option{Label: "1-a", Detail: "sleep 5"}).String(); got != "1-a  sleep 5" {
		t.Errorf("String() = %q", got)
	}
	if got := (Option{Label: "1-a"}).String(); got != "1-a" {
		t.Errorf("String() = %q", got)
	}
}

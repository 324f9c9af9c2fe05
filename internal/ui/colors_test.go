package ui

import (
	"strings"
	"testing"

	"github.com/kokjohn0824/detach/internal/task"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{"short string is kept", "Hello", 10, "Hello"},
		{"exactly max length", "Hello", 5, "Hello"},
		{"long string is cut", "Hello World", 8, "Hello..."},
		{"empty", "", 10, ""},
		{"zero max", "Hello", 0, ""},
		{"negative max", "Hello", -1, ""},
		{"max of three or less", "Hello", 3, "Hel"},
		{"max of one", "Hello", 1, "H"},
		{"multibyte", "日本語のコマンド", 5, "日本..."},
		{"long command", "/usr/bin/python3 -m http.server 8080", 20, "/usr/bin/python3 ..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Truncate(tt.input, tt.maxLen)
			if result != tt.expected {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, result, tt.expected)
			}
		})
	}
}

func TestTruncateLength(t *testing.T) {
	testCases := []struct {
		input  string
		maxLen int
	}{
		{"Hello World!", 5},
		{"Hello World!", 10},
		{"Short", 10},
		{"A very long string that needs truncation", 20},
	}

	for _, tc := range testCases {
		result := Truncate(tc.input, tc.maxLen)
		if len([]rune(result)) > tc.maxLen {
			t.Errorf("Truncate(%q, %d) returned %d runes, expected <= %d",
				tc.input, tc.maxLen, len([]rune(result)), tc.maxLen)
		}
	}
}

func TestRenderStatus(t *testing.T) {
	tests := []struct {
		status task.Status
		want   string
	}{
		{task.Running(), "running"},
		{task.Exited(0), "exited(0)"},
		{task.Exited(2), "exited(2)"},
		{task.Signaled("SIGKILL"), "signaled(SIGKILL)"},
		{task.Unknown(), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := RenderStatus(tt.status)
			if !strings.Contains(got, tt.want) {
				t.Errorf("RenderStatus(%v) = %q, want it to contain %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestStatusIcon_NonZeroExitIsFailure(t *testing.T) {
	if StatusIcon(task.Exited(1)) != StatusIcon(task.Signaled("SIGTERM")) {
		t.Error("a non-zero exit should use the failure icon")
	}
	if StatusIcon(task.Exited(0)) == StatusIcon(task.Exited(1)) {
		t.Error("success and failure icons should differ")
	}
}

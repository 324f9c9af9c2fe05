package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestError(t *testing.T) {
	t.Run("with underlying error", func(t *testing.T) {
		underlying := fmt.Errorf("underlying error")
		err := New(KindStoreCorruption, "test_op", "test message", underlying)

		if err.Severity() != SeverityRecoverable {
			t.Errorf("expected SeverityRecoverable, got %v", err.Severity())
		}

		expected := "test_op: test message: underlying error"
		if err.Error() != expected {
			t.Errorf("expected %q, got %q", expected, err.Error())
		}

		if err.Unwrap() != underlying {
			t.Error("Unwrap should return the underlying error")
		}
	})

	t.Run("without underlying error", func(t *testing.T) {
		err := New(KindLaunch, "test_op", "test message", nil)

		expected := "test_op: test message"
		if err.Error() != expected {
			t.Errorf("expected %q, got %q", expected, err.Error())
		}

		if err.Severity() != SeverityFatal {
			t.Errorf("expected SeverityFatal, got %v", err.Severity())
		}
	})
}

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "store corruption",
			err:      StoreCorruption("/tmp/x.json", nil),
			expected: true,
		},
		{
			name:     "launch error",
			err:      Launch(ReasonNotFound, "nope", nil),
			expected: false,
		},
		{
			name:     "wrapped timeout",
			err:      fmt.Errorf("wrapped: %w", Timeout("wait", "1-a", time.Second)),
			expected: true,
		},
		{
			name:     "standard error",
			err:      fmt.Errorf("standard error"),
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsRecoverable(tt.err)
			if result != tt.expected {
				t.Errorf("IsRecoverable(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "launch timeout",
			err:      LaunchTimeout(time.Second),
			expected: true,
		},
		{
			name:     "not found",
			err:      NotFound("status", "1-a"),
			expected: false,
		},
		{
			name:     "wrapped duplicate id",
			err:      fmt.Errorf("wrapped: %w", DuplicateID("1-a")),
			expected: true,
		},
		{
			name:     "standard error (treated as fatal)",
			err:      fmt.Errorf("standard error"),
			expected: true,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsFatal(tt.err)
			if result != tt.expected {
				t.Errorf("IsFatal(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		want     bool
	}{
		{"launch matches ErrLaunch", Launch(ReasonPermission, "", nil), ErrLaunch, true},
		{"launch matches its reason", Launch(ReasonPermission, "", nil), ErrPermissionDenied, true},
		{"launch does not match other reason", Launch(ReasonPermission, "", nil), ErrCommandNotFound, false},
		{"not found", NotFound("get", "1-a"), ErrNotFound, true},
		{"wrapped not found", fmt.Errorf("x: %w", NotFound("get", "1-a")), ErrNotFound, true},
		{"duplicate is not not-found", DuplicateID("1-a"), ErrNotFound, false},
		{"timeout", Timeout("wait", "1-a", time.Second), ErrTimeout, true},
		{"launch timeout is not timeout", LaunchTimeout(time.Second), ErrTimeout, false},
		{"invalid", Invalid("rm", "busy"), ErrInvalid, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.sentinel); got != tt.want {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.sentinel, got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(fmt.Errorf("w: %w", StoreCorruption("p", nil))); got != KindStoreCorruption {
		t.Errorf("KindOf = %v, want StoreCorruption", got)
	}
	if got := KindOf(fmt.Errorf("plain")); got != KindUnknown {
		t.Errorf("KindOf(plain) = %v, want Unknown", got)
	}
	if got := ReasonOf(Launch(ReasonRedirect, "open /x", nil)); got != ReasonRedirect {
		t.Errorf("ReasonOf = %q, want %q", got, ReasonRedirect)
	}
	if KindDuplicateID.String() != "DuplicateId" {
		t.Errorf("KindDuplicateID.String() = %q", KindDuplicateID.String())
	}
}

func TestErrorWrapping(t *testing.T) {
	t.Run("errors.Is works with wrapped errors", func(t *testing.T) {
		underlying := fmt.Errorf("base error")
		err := StoreCorruption("/x", underlying)

		if !errors.Is(err, underlying) {
			t.Error("errors.Is should find underlying error")
		}
	})

	t.Run("errors.As works with custom types", func(t *testing.T) {
		err := NotFound("status", "1-a")
		wrapped := fmt.Errorf("wrapped: %w", err)

		var detachErr *Error
		if !errors.As(wrapped, &detachErr) {
			t.Error("errors.As should find Error")
		}
		if detachErr.Op != "status" {
			t.Errorf("expected Op to be 'status', got %q", detachErr.Op)
		}
	})
}

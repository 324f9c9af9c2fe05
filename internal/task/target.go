package task

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// TargetKind selects where a standard stream is routed
type TargetKind string

const (
	TargetDiscard TargetKind = "discard"
	TargetFile    TargetKind = "file"
	TargetCapture TargetKind = "capture"
)

// DefaultCaptureLimit bounds a capture buffer when no limit is given.
const DefaultCaptureLimit = 64 * 1024

// MaxCaptureLimit is the largest capture buffer a task may ask for.
// Captures are held in memory by the supervisor.
const MaxCaptureLimit = 64 * 1024 * 1024

// DefaultFilePerm is used for file targets created without an explicit mode.
const DefaultFilePerm os.FileMode = 0644

// Target describes where one standard stream of a task is routed
type Target struct {
	Kind   TargetKind  `json:"kind" yaml:"kind"`
	Path   string      `json:"path,omitempty" yaml:"path,omitempty"`
	Append bool        `json:"append,omitempty" yaml:"append,omitempty"`
	Perm   os.FileMode `json:"perm,omitempty" yaml:"perm,omitempty"`
	Limit  int         `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// Discard routes the stream to the null device
func Discard() Target {
	return Target{Kind: TargetDiscard}
}

// ToFile routes the stream to path, truncating it unless appendMode is set
func ToFile(path string, appendMode bool) Target {
	return Target{Kind: TargetFile, Path: path, Append: appendMode, Perm: DefaultFilePerm}
}

// Capture routes the stream into a bounded buffer of limit bytes
func Capture(limit int) Target {
	if limit <= 0 {
		limit = DefaultCaptureLimit
	}
	return Target{Kind: TargetCapture, Limit: limit}
}

// IsZero reports whether the target was left unset
func (t Target) IsZero() bool {
	return t.Kind == ""
}

// OrDiscard returns t, or Discard if t is unset
func (t Target) OrDiscard() Target {
	if t.IsZero() {
		return Discard()
	}
	return t
}

// Validate validates the target
func (t Target) Validate() error {
	switch t.Kind {
	case "", TargetDiscard:
		return nil
	case TargetFile:
		if t.Path == "" {
			return fmt.Errorf("file target requires a path")
		}
		return nil
	case TargetCapture:
		if t.Limit <= 0 {
			return fmt.Errorf("capture target requires a positive limit")
		}
		if t.Limit > MaxCaptureLimit {
			return fmt.Errorf("capture limit %d exceeds the maximum of %d bytes", t.Limit, MaxCaptureLimit)
		}
		return nil
	default:
		return fmt.Errorf("unknown target kind: %s", t.Kind)
	}
}

// String renders the target for display: discard, file:/x (append), capture:65536
func (t Target) String() string {
	switch t.Kind {
	case TargetFile:
		if t.Append {
			return "file:" + t.Path + " (append)"
		}
		return "file:" + t.Path
	case TargetCapture:
		return "capture:" + strconv.Itoa(t.Limit)
	case "":
		return string(TargetDiscard)
	default:
		return string(t.Kind)
	}
}

// ParseTarget parses the command-line form of a target:
//
//	discard | null
//	capture | capture:<bytes>
//	file:<path> | append:<path>
func ParseTarget(s string) (Target, error) {
	kind, arg, _ := strings.Cut(s, ":")
	switch kind {
	case "", "discard", "null":
		return Discard(), nil
	case "capture":
		if arg == "" {
			return Capture(DefaultCaptureLimit), nil
		}
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return Target{}, fmt.Errorf("invalid capture limit: %q", arg)
		}
		t := Capture(n)
		return t, t.Validate()
	case "file", "append":
		if arg == "" {
			return Target{}, fmt.Errorf("%s target requires a path", kind)
		}
		return ToFile(arg, kind == "append"), nil
	default:
		return Target{}, fmt.Errorf("unknown target: %q", s)
	}
}

// Package redirect wires the standard streams of a detached task to their
// targets: the null device, a file, or a bounded in-memory capture.
package redirect

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	derrors "github.com/kokjohn0824/detach/internal/errors"
	"github.com/kokjohn0824/detach/internal/task"
)

// Stream names
const (
	Stdout = "stdout"
	Stderr = "stderr"
)

// Sink is the read side of a captured stream
type Sink struct {
	Stream string
	r      *os.File
	buf    *RingBuffer
	done   chan struct{}
}

// Buffer returns the ring buffer holding the captured tail
func (s *Sink) Buffer() *RingBuffer {
	return s.buf
}

// Snapshot is the state of one capture at a point in time
type Snapshot struct {
	Stream    string
	Data      []byte
	Truncated bool
	Dropped   int64
}

// Snapshot copies the captured tail of the sink
func (s *Sink) Snapshot() Snapshot {
	data, dropped := s.buf.Snapshot()
	return Snapshot{
		Stream:    s.Stream,
		Data:      data,
		Truncated: dropped > 0,
		Dropped:   dropped,
	}
}

// drain copies the pipe into the buffer until the write end is closed by
// every holder.
func (s *Sink) drain() {
	defer close(s.done)
	_, _ = io.Copy(s.buf, s.r)
}

// Streams holds the descriptors of one task's redirection plan. The child
// ends are handed to the payload and closed in the parent once it started;
// the capture read ends stay with the supervisor.
type Streams struct {
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	sinks     []*Sink
	childEnds []*os.File
	closeOnce sync.Once
}

// Open opens the three targets. Files are opened with the caller's
// permissions; a failure to open any of them is a redirection failure and
// nothing stays open.
func Open(stdin, stdout, stderr task.Target) (*Streams, error) {
	s := &Streams{}
	var err error

	if s.Stdin, err = s.openInput(stdin.OrDiscard()); err != nil {
		s.Close()
		return nil, err
	}
	if s.Stdout, err = s.openOutput(Stdout, stdout.OrDiscard()); err != nil {
		s.Close()
		return nil, err
	}
	// stdout and stderr sent to the same file share one description so the
	// writes interleave instead of overwriting each other.
	if stderr.Kind == task.TargetFile && stderr == stdout {
		s.Stderr = s.Stdout
	} else if s.Stderr, err = s.openOutput(Stderr, stderr.OrDiscard()); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Streams) track(f *os.File) *os.File {
	s.childEnds = append(s.childEnds, f)
	return f
}

func (s *Streams) openInput(t task.Target) (*os.File, error) {
	switch t.Kind {
	case task.TargetDiscard:
		return s.openNull(os.O_RDONLY)
	case task.TargetFile:
		f, err := os.OpenFile(t.Path, os.O_RDONLY|openFlags, 0)
		if err != nil {
			return nil, derrors.Launch(derrors.ReasonRedirect, "stdin "+t.Path, err)
		}
		return s.track(f), nil
	default:
		return nil, derrors.Launch(derrors.ReasonInvalid, fmt.Sprintf("stdin cannot be %s", t.Kind), nil)
	}
}

func (s *Streams) openOutput(stream string, t task.Target) (*os.File, error) {
	switch t.Kind {
	case task.TargetDiscard:
		return s.openNull(os.O_WRONLY)
	case task.TargetFile:
		flags := os.O_CREATE | os.O_WRONLY | openFlags
		if t.Append {
			flags |= os.O_APPEND
		} else {
			flags |= os.O_TRUNC
		}
		perm := t.Perm
		if perm == 0 {
			perm = task.DefaultFilePerm
		}
		f, err := os.OpenFile(t.Path, flags, perm)
		if err != nil {
			return nil, derrors.Launch(derrors.ReasonRedirect, stream+" "+t.Path, err)
		}
		return s.track(f), nil
	case task.TargetCapture:
		r, w, err := os.Pipe()
		if err != nil {
			return nil, derrors.Launch(derrors.ReasonRedirect, stream+" capture", err)
		}
		s.sinks = append(s.sinks, &Sink{
			Stream: stream,
			r:      r,
			buf:    NewRingBuffer(t.Limit),
			done:   make(chan struct{}),
		})
		return s.track(w), nil
	default:
		return nil, derrors.Launch(derrors.ReasonInvalid, fmt.Sprintf("unknown %s target %q", stream, t.Kind), nil)
	}
}

func (s *Streams) openNull(flag int) (*os.File, error) {
	f, err := os.OpenFile(os.DevNull, flag|openFlags, 0)
	if err != nil {
		return nil, derrors.Launch(derrors.ReasonRedirect, os.DevNull, err)
	}
	return s.track(f), nil
}

// Sinks returns the captured streams
func (s *Streams) Sinks() []*Sink {
	return s.sinks
}

// CloseChildEnds closes the descriptors handed to the payload. It must be
// called once the payload started, otherwise a capture never sees EOF.
func (s *Streams) CloseChildEnds() {
	s.closeOnce.Do(func() {
		for _, f := range s.childEnds {
			f.Close()
		}
	})
}

// Close releases every descriptor, including capture read ends
func (s *Streams) Close() {
	s.CloseChildEnds()
	for _, sink := range s.sinks {
		sink.r.Close()
	}
}

// StartDrain starts one goroutine per capture copying the pipe into its
// ring buffer. The payload never blocks on a full pipe: overflow
// overwrites the oldest captured bytes instead.
func (s *Streams) StartDrain() {
	for _, sink := range s.sinks {
		go sink.drain()
	}
}

// WaitDrained waits up to timeout for every drainer to reach EOF. A
// grandchild that kept a write end open would hold the pipe forever, so
// after the timeout the read ends are closed and the drainers abandoned.
// It reports whether every drainer finished in time.
func (s *Streams) WaitDrained(timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	clean := true
	for _, sink := range s.sinks {
		select {
		case <-sink.done:
		case <-deadline.C:
			clean = false
			for _, other := range s.sinks {
				other.r.Close()
			}
			for _, other := range s.sinks {
				<-other.done
			}
			return clean
		}
	}
	return clean
}

// Snapshots copies every capture
func (s *Streams) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(s.sinks))
	for _, sink := range s.sinks {
		out = append(out, sink.Snapshot())
	}
	return out
}

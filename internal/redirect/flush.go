package redirect

import (
	"context"
	"time"
)

// FlushFunc persists one capture snapshot
type FlushFunc func(Snapshot) error

// Flusher periodically persists the captures of a Streams so that other
// processes can read the output while the task is still running. Only
// snapshots that changed since the last successful flush are written.
type Flusher struct {
	streams  *Streams
	interval time.Duration
	flush    FlushFunc
	onError  func(error)

	last map[string]int64 // bytes written at the last successful flush
}

// NewFlusher creates a flusher. onError may be nil.
func NewFlusher(streams *Streams, interval time.Duration, flush FlushFunc, onError func(error)) *Flusher {
	if onError == nil {
		onError = func(error) {}
	}
	return &Flusher{
		streams:  streams,
		interval: interval,
		flush:    flush,
		onError:  onError,
		last:     make(map[string]int64),
	}
}

// Run flushes every interval until ctx is done. It does not flush on exit;
// call Flush after the drainers finished for the final snapshot.
func (f *Flusher) Run(ctx context.Context) {
	if len(f.streams.Sinks()) == 0 || f.interval <= 0 {
		return
	}
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.Flush(false)
		}
	}
}

// Flush writes the snapshots that changed. With force every capture is
// written, even an empty one, so a reader can tell "nothing printed" from
// "not flushed yet". Flush is not safe for concurrent use with Run.
func (f *Flusher) Flush(force bool) {
	for _, sink := range f.streams.Sinks() {
		written := sink.Buffer().Written()
		if prev, seen := f.last[sink.Stream]; seen && !force && prev == written {
			continue
		}
		if err := f.flush(sink.Snapshot()); err != nil {
			f.onError(err)
			continue
		}
		f.last[sink.Stream] = written
	}
}

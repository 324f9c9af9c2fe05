package store

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/kokjohn0824/detach/internal/task"
)

// Watch notifies on the returned channel whenever the record of id may have
// changed. Notifications are coalesced: a pending one is never duplicated.
// The channel is closed when ctx is done or the watcher fails, so callers
// must keep polling as a fallback.
//
// The directory is watched rather than the file because every write renames
// a new inode over the record.
func (s *Store) Watch(ctx context.Context, id task.ID) (<-chan struct{}, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(s.dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	name := filepath.Base(s.Path(id))
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != name {
					continue
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return ch, nil
}

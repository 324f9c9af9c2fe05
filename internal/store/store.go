// Package store persists task handles so that any invocation of the tool can
// find tasks started by another one.
//
// Each task is one JSON file, tasks/<id>.json, under the state directory.
// Every write goes to a temp file first and is then linked (insert) or
// renamed (update) into place, so a concurrent reader in another process
// sees either the previous record or the new one, never a partial write.
// Updates and removals hold a lock file in the tasks directory, so an update
// never brings back a record removed by another process.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	derrors "github.com/kokjohn0824/detach/internal/errors"
	"github.com/kokjohn0824/detach/internal/i18n"
	"github.com/kokjohn0824/detach/internal/task"
)

const (
	tasksDir   = "tasks"
	recordExt  = ".json"
	captureExt = ".capture"

	dirPerm    os.FileMode = 0700
	recordPerm os.FileMode = 0600
)

// Stream names accepted by PutCapture and GetCapture
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// Store handles task persistence under a state directory
type Store struct {
	root      string
	dir       string
	retention time.Duration
	now       func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithRetention lets Put replace a terminal record that finished more than d
// ago. Zero keeps records until they are removed explicitly.
func WithRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store rooted at the given state directory.
func New(root string, opts ...Option) *Store {
	s := &Store{
		root: root,
		dir:  filepath.Join(root, tasksDir),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init creates the state directories. Permissions are 0700: records name
// commands and output files of the user.
func (s *Store) Init() error {
	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", s.dir, err)
	}
	return nil
}

// Root returns the state directory
func (s *Store) Root() string {
	return s.root
}

// Retention returns the configured retention period
func (s *Store) Retention() time.Duration {
	return s.retention
}

// Path returns the record path of id
func (s *Store) Path(id task.ID) string {
	return filepath.Join(s.dir, string(id)+recordExt)
}

func (s *Store) capturePath(id task.ID, stream string) string {
	return filepath.Join(s.dir, string(id)+"."+stream+captureExt)
}

// Put inserts a new record. It fails with DuplicateId if a record with the
// same id exists and has not expired under the retention policy.
func (s *Store) Put(h *task.Handle) error {
	if err := h.Validate(); err != nil {
		return err
	}
	data, err := h.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	path := s.Path(h.ID)
	err = createFile(path, data)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("failed to write task record: %w", err)
	}

	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()
	existing, getErr := s.Get(h.ID)
	if getErr != nil || !s.Expired(existing) {
		return derrors.DuplicateID(string(h.ID))
	}
	if err := replaceFile(path, data); err != nil {
		return fmt.Errorf("failed to replace expired task record: %w", err)
	}
	s.removeCaptures(h.ID)
	return nil
}

// Update replaces an existing record. It fails with NotFound if the record
// was removed, so a late writer cannot resurrect a deleted task.
func (s *Store) Update(h *task.Handle) error {
	if err := h.Validate(); err != nil {
		return err
	}
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	path := s.Path(h.ID)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return derrors.NotFound(i18n.ErrOpStore, string(h.ID))
		}
		return fmt.Errorf("failed to stat task record: %w", err)
	}

	data, err := h.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	if err := replaceFile(path, data); err != nil {
		return fmt.Errorf("failed to write task record: %w", err)
	}
	return nil
}

// Get reads the record of id.
func (s *Store) Get(id task.ID) (*task.Handle, error) {
	return s.load(s.Path(id), id)
}

func (s *Store) load(path string, id task.ID) (*task.Handle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, derrors.NotFound(i18n.ErrOpStore, string(id))
		}
		return nil, derrors.StoreCorruption(path, err)
	}
	h, err := task.FromJSON(data)
	if err != nil {
		return nil, derrors.StoreCorruption(path, err)
	}
	if h.ID != id {
		return nil, derrors.StoreCorruption(path, fmt.Errorf("record holds id %s", h.ID))
	}
	return h, nil
}

// List returns every record in file name order. The sequence is lazy and
// restartable: each range re-reads the directory. An unreadable record is
// yielded as a StoreCorruption error and iteration continues.
func (s *Store) List() iter.Seq2[*task.Handle, error] {
	return func(yield func(*task.Handle, error) bool) {
		entries, err := os.ReadDir(s.dir)
		if err != nil {
			if os.IsNotExist(err) {
				return
			}
			yield(nil, fmt.Errorf("failed to read directory: %w", err))
			return
		}

		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || filepath.Ext(name) != recordExt || strings.HasPrefix(name, ".") {
				continue
			}
			path := filepath.Join(s.dir, name)
			id, err := task.ParseID(strings.TrimSuffix(name, recordExt))
			if err != nil {
				if !yield(nil, derrors.StoreCorruption(path, err)) {
					return
				}
				continue
			}

			h, err := s.load(path, id)
			if derrors.KindOf(err) == derrors.KindNotFound {
				// removed between ReadDir and ReadFile
				continue
			}
			if !yield(h, err) {
				return
			}
		}
	}
}

// Remove deletes the record of id and its captured output.
func (s *Store) Remove(id task.ID) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(s.Path(id)); err != nil {
		if os.IsNotExist(err) {
			return derrors.NotFound(i18n.ErrOpStore, string(id))
		}
		return fmt.Errorf("failed to remove task record: %w", err)
	}
	s.removeCaptures(id)
	return nil
}

func (s *Store) removeCaptures(id task.ID) {
	for _, stream := range []string{StreamStdout, StreamStderr} {
		_ = os.Remove(s.capturePath(id, stream))
	}
}

// Expired reports whether h may be dropped under the retention policy.
func (s *Store) Expired(h *task.Handle) bool {
	if s.retention <= 0 || !h.Status.IsTerminal() || h.FinishedAt == nil {
		return false
	}
	return s.now().Sub(*h.FinishedAt) > s.retention
}

// Capture is a snapshot of the bounded buffer of one captured stream
type Capture struct {
	Stream    string    `json:"stream"`
	Data      []byte    `json:"data"`
	Truncated bool      `json:"truncated"`
	Dropped   int64     `json:"dropped"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PutCapture replaces the captured output snapshot of one stream.
func (s *Store) PutCapture(id task.ID, c *Capture) error {
	if c.Stream != StreamStdout && c.Stream != StreamStderr {
		return fmt.Errorf("invalid stream: %q", c.Stream)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal capture: %w", err)
	}
	if err := replaceFile(s.capturePath(id, c.Stream), data); err != nil {
		return fmt.Errorf("failed to write capture: %w", err)
	}
	return nil
}

// GetCapture reads the captured output snapshot of one stream. It returns
// NotFound when nothing has been flushed yet.
func (s *Store) GetCapture(id task.ID, stream string) (*Capture, error) {
	path := s.capturePath(id, stream)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, derrors.NotFound(i18n.ErrOpOutput, string(id))
		}
		return nil, derrors.StoreCorruption(path, err)
	}
	var c Capture
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, derrors.StoreCorruption(path, err)
	}
	return &c, nil
}

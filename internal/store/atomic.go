package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// writeTemp writes data to a fresh temp file next to final and syncs it.
// The caller owns the returned path and must rename, link or remove it.
func writeTemp(final string, data []byte) (string, error) {
	dir := filepath.Dir(final)
	f, err := os.CreateTemp(dir, "."+filepath.Base(final)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Chmod(recordPerm); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return tmp, nil
}

// replaceFile atomically replaces final with data: readers see either the
// old or the new content, never a partial write.
func replaceFile(final string, data []byte) error {
	tmp, err := writeTemp(final, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	syncDir(filepath.Dir(final))
	return nil
}

// createFile atomically creates final with data. It fails with an error
// satisfying os.IsExist if final already exists, even when another process
// races for the same name.
func createFile(final string, data []byte) error {
	tmp, err := writeTemp(final, data)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, final); err != nil {
		return err
	}
	syncDir(filepath.Dir(final))
	return nil
}

// syncDir makes a rename or link durable. Failures are ignored: not every
// filesystem supports fsync on directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}

package utils

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var ErrEmptyFile = errors.New("refusing to write an empty file")

// WriteFileAtomic streams r into path through a temporary sibling and renames
// it into place, so readers never observe a partial file.
func WriteFileAtomic(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to close temporary file: %w", err)
	}
	if written == 0 {
		os.Remove(tmpPath)
		return 0, ErrEmptyFile
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return written, nil
}

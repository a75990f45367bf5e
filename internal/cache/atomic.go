package cache

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// TempSuffix marks in-flight outputs. Files with this suffix are never
// considered by Valid and are removed when the producing unit fails.
const TempSuffix = ".tmp"

// TempPath returns the in-flight path for a final artifact path.
func TempPath(path string) string {
	return path + TempSuffix
}

// WriteFile writes data to path atomically.
func WriteFile(path string, data []byte) error {
	return WriteAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteAtomic writes path through write into a temporary sibling and
// renames it into place once write and the flush succeed. On any failure
// the temporary file is removed and path is left untouched.
func WriteAtomic(path string, write func(io.Writer) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}

	tmp := TempPath(path)
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	bw := bufio.NewWriter(f)
	if err = write(bw); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// Promote moves a completed temporary file into its final place.
func Promote(tmp, path string) error {
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("promote %s: %w", path, err)
	}
	return nil
}

// Discard removes a temporary file left by a failed unit.
func Discard(tmp string) {
	_ = os.Remove(tmp)
}

// Unchanged reports whether the file at path already holds exactly data,
// letting callers skip a rewrite that would only bump the modification time.
func Unchanged(path string, data []byte) bool {
	existing, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return string(existing) == string(data)
}

package filelock

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// TempFile is the minimal handle needed to stage a replacement file.
type TempFile interface {
	io.Writer
	Sync() error
	Close() error
	Name() string
}

// Ops holds the filesystem primitives used by AtomicWriter.
// Nil fields fall back to the os package; tests replace them to simulate failures.
type Ops struct {
	CreateTemp func(dir, pattern string) (TempFile, error)
	Chmod      func(name string, mode os.FileMode) error
	Rename     func(oldpath, newpath string) error
	Remove     func(name string) error
	SyncDir    func(dir string) error
}

// AtomicWriter replaces file contents using the temp file and rename strategy.
// Readers observe either the old contents or the new contents, never a mix.
type AtomicWriter struct {
	ops Ops
}

// NewAtomicWriter creates an AtomicWriter backed by the real OS primitives.
func NewAtomicWriter() *AtomicWriter {
	return NewAtomicWriterWithOps(Ops{})
}

// NewAtomicWriterWithOps creates an AtomicWriter with selected primitives overridden.
func NewAtomicWriterWithOps(ops Ops) *AtomicWriter {
	if ops.CreateTemp == nil {
		ops.CreateTemp = func(dir, pattern string) (TempFile, error) {
			return os.CreateTemp(dir, pattern)
		}
	}
	if ops.Chmod == nil {
		ops.Chmod = os.Chmod
	}
	if ops.Rename == nil {
		ops.Rename = os.Rename
	}
	if ops.Remove == nil {
		ops.Remove = os.Remove
	}
	if ops.SyncDir == nil {
		ops.SyncDir = syncDir
	}
	return &AtomicWriter{ops: ops}
}

const (
	tempInfix  = ".lf-"
	tempSuffix = ".tmp"
)

// IsTempFile reports whether name looks like a temporary file created by
// AtomicWriter.Write.
func IsTempFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(base, ".") && strings.HasSuffix(base, tempSuffix) && strings.Contains(base, tempInfix)
}

// Write replaces path with data and sets its mode to perm.
//
// The process:
// 1. Create a temporary file in the same directory as the target
// 2. Write and fsync the content, then close the handle
// 3. Apply perm to the temporary file
// 4. Rename the temporary file over the target (atomic on the same filesystem)
//
// The target is never opened for writing. On any failure the temporary file is
// removed and the target keeps its previous contents.
func (w *AtomicWriter) Write(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := w.ops.CreateTemp(dir, "."+filepath.Base(path)+tempInfix+"*"+tempSuffix)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	tmpPath := tmpFile.Name()
	needsCleanup := true

	defer func() {
		if tmpFile != nil {
			_ = tmpFile.Close()
		}
		if needsCleanup {
			_ = w.ops.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	// Close before chmod and rename (required on some systems)
	err = tmpFile.Close()
	tmpFile = nil
	if err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := w.ops.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := w.ops.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}
	needsCleanup = false

	// The rename is durable only once the directory entry is flushed. Not every
	// platform supports syncing a directory, so failure here is ignored.
	_ = w.ops.SyncDir(dir)

	return nil
}

// AtomicWrite writes data to path atomically with mode 0644, creating the
// parent directory if needed. It is used for files lf owns, such as reports.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return NewAtomicWriter().Write(path, data, 0644)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

package persist

import (
	"os"
	"path/filepath"
)

// tempSuffix is appended to a SafeFile's temporary name while it is being
// written, and stripped off on Commit.
const tempSuffix = "_temp"

// ErrBadFilenameSuffix is returned when a caller asks to load a file whose
// name ends with tempSuffix: that name only ever refers to a file still
// being written, never a committed one.
var ErrBadFilenameSuffix = errorString("persist: cannot load a file with the temporary suffix")

type errorString string

func (e errorString) Error() string { return string(e) }

// SafeFile writes to a temporary file and only replaces the target path on
// Commit, so a crash mid-write never leaves a corrupted file at the final
// name.
type SafeFile struct {
	file      *os.File
	finalName string
}

// NewSafeFile opens a temporary file alongside name for writing.
func NewSafeFile(name string) (*SafeFile, error) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(abs+tempSuffix, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}
	return &SafeFile{file: f, finalName: abs}, nil
}

// Name returns the temporary file's path, not the final name it will have
// after Commit.
func (sf *SafeFile) Name() string {
	return sf.file.Name()
}

// Write implements io.Writer against the temporary file.
func (sf *SafeFile) Write(p []byte) (int, error) {
	return sf.file.Write(p)
}

// Commit flushes and atomically renames the temporary file to its final
// name.
func (sf *SafeFile) Commit() error {
	if err := sf.file.Sync(); err != nil {
		return err
	}
	if err := sf.file.Close(); err != nil {
		return err
	}
	return os.Rename(sf.file.Name(), sf.finalName)
}

// Close releases the temporary file without committing it. It is
// idempotent: calling it again after Commit or another Close is a
// harmless no-op.
func (sf *SafeFile) Close() error {
	sf.file.Close()
	os.Remove(sf.file.Name())
	return nil
}

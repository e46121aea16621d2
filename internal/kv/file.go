package kv

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// File is a Store backed by one <key>.json file per key under a data
// directory. Writes are atomic (temp file + rename) and guarded by an
// advisory file lock, so a second nebula process sharing the directory
// cannot interleave a write. It deliberately offers nothing beyond that:
// multi-process consistency is out of scope for this design.
type File struct {
	dir  string
	lock *flock.Flock
}

// NewFile creates a file-backed store rooted at dir, creating the
// directory if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &File{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, ".lock")),
	}, nil
}

// Dir returns the data directory.
func (f *File) Dir() string { return f.dir }

// Get reads the value for key.
func (f *File) Get(key string) ([]byte, bool, error) {
	if !validKey(key) {
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if err := f.lock.Lock(); err != nil {
		return nil, false, fmt.Errorf("locking data directory: %w", err)
	}
	defer f.unlock()

	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, true, nil
}

// Set atomically writes the value for key.
func (f *File) Set(key string, value []byte) error {
	if !validKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("locking data directory: %w", err)
	}
	defer f.unlock()

	tmp, err := os.CreateTemp(f.dir, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file for %s: %w", key, err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("committing %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (f *File) Delete(key string) error {
	if !validKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("locking data directory: %w", err)
	}
	defer f.unlock()

	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

func (f *File) unlock() {
	// Unlock only fails if the lock file vanished underneath us; nothing
	// useful can be done at this point.
	_ = f.lock.Unlock()
}

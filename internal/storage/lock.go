package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the write lock.
var ErrLocked = errors.New("index is locked by another process")

const lockFileName = ".codematch.lock"

// WriteLock is a cross-process lock guarding writes to the on-disk indexes.
// A CLI load and a running server share the same database, so only one of
// them may rebuild at a time.
type WriteLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewWriteLock creates a lock file in dir.
func NewWriteLock(dir string) *WriteLock {
	p := filepath.Join(dir, lockFileName)
	return &WriteLock{path: p, flock: flock.New(p)}
}

// TryLock acquires the lock without blocking. It returns ErrLocked when the
// lock is held elsewhere.
func (l *WriteLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Calling it on an unlocked WriteLock is a no-op.
func (l *WriteLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *WriteLock) Path() string { return l.path }

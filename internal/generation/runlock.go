package generation

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// RunLock guards generation across processes sharing a state directory.
type RunLock struct {
	path string
	lock *flock.Flock
}

// NewRunLock returns a lock backed by path.
func NewRunLock(path string) *RunLock {
	return &RunLock{path: path, lock: flock.New(path)}
}

// Path returns the lock file path.
func (l *RunLock) Path() string {
	return l.path
}

// TryAcquire takes the lock without blocking. It reports false when another
// process holds it.
func (l *RunLock) TryAcquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := l.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire run lock: %w", err)
	}
	return ok, nil
}

// Release drops the lock.
func (l *RunLock) Release() error {
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}

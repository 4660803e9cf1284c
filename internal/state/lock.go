package state

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// BusyError means another org-gh invocation holds the lock for this
// outline's baseline.
type BusyError struct {
	Path string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("another org-gh instance is operating on this file (lock held: %s)", e.Path)
}

// Lock is an exclusive advisory lock scoped to one baseline file.
type Lock struct {
	f *os.File
}

// Acquire takes the advisory lock for the given baseline path without
// blocking. A held lock yields a BusyError.
func Acquire(baselinePath string) (*Lock, error) {
	lockPath := baselinePath + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, &BusyError{Path: lockPath}
		}
		return nil, fmt.Errorf("failed to lock %s: %w", lockPath, err)
	}
	return &Lock{f: f}, nil
}

// Release drops the lock. Safe to call on a nil lock.
func (l *Lock) Release() {
	if l == nil || l.f == nil {
		return
	}
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	_ = l.f.Close()
	l.f = nil
}

// Package runlock keeps at most one traversal per job in flight, across
// goroutines and processes.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

var ErrLocked = errors.New("job is already running")

// Lock is a held job lock.
type Lock struct {
	flock *flock.Flock
	job   string
}

// Path returns the lock file used for job under dir.
func Path(dir, job string) string {
	return filepath.Join(dir, sanitize(job)+".lock")
}

func sanitize(job string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, job)
}

// Acquire takes the lock for job without blocking. It returns ErrLocked when
// another holder has it.
func Acquire(dir, job string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory %s: %w", dir, err)
	}

	path := Path(dir, job)
	fl := flock.New(path)
	acquired, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to try lock on %s: %w", path, err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", ErrLocked, job)
	}
	return &Lock{flock: fl, job: job}, nil
}

// Release unlocks; the lock file stays in place for the next run.
func (l *Lock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock for %s: %w", l.job, err)
	}
	return nil
}

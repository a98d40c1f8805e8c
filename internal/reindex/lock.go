package reindex

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	syncerrors "github.com/lexhaven/vecsync/internal/errors"
)

// PassLockName is the lock file created next to the registry.
const PassLockName = ".pass.lock"

// PassLock is a cross-process advisory lock that keeps two passes from
// interleaving writes to the same registry and index. Acquisition is
// non-blocking: a second pass should fail loudly, not queue up behind
// the first.
type PassLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewPassLock creates a lock scoped to dir, typically the directory
// holding the registry database.
func NewPassLock(dir string) *PassLock {
	path := filepath.Join(dir, PassLockName)
	return &PassLock{path: path, flock: flock.New(path)}
}

// Acquire takes the lock or fails with a pass-locked error when another
// process holds it.
func (l *PassLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return syncerrors.New(syncerrors.ErrCodePassLocked,
			"failed to create lock directory", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return syncerrors.New(syncerrors.ErrCodePassLocked,
			"failed to acquire pass lock", err)
	}
	if !acquired {
		return syncerrors.New(syncerrors.ErrCodePassLocked,
			"another pass is already running against this registry", nil).
			WithSuggestion("wait for the running pass to finish, or remove " + l.path + " if it crashed")
	}

	l.locked = true
	return nil
}

// Release drops the lock. Safe to call repeatedly or without holding it.
func (l *PassLock) Release() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		l.locked = false
		return syncerrors.New(syncerrors.ErrCodePassLocked,
			"failed to release pass lock", err)
	}
	l.locked = false
	return nil
}

// Path returns the lock file location.
func (l *PassLock) Path() string {
	return l.path
}

// Held reports whether this process holds the lock.
func (l *PassLock) Held() bool {
	return l.locked
}

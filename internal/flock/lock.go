package flock

import (
	"context"
	"os"
	"time"

	"github.com/webrunhq/webrun/internal/ctxutil"
	"github.com/webrunhq/webrun/internal/errors"
)

// retryInterval is how often Acquire re-attempts a contended lock.
const retryInterval = 100 * time.Millisecond

// Lock is a held exclusive lock backed by an open lock file.
type Lock struct {
	file *os.File
}

// Acquire opens (creating if needed) the lock file at path and takes an
// exclusive lock, retrying until timeout elapses or ctx is done. On
// contention past the deadline it returns ErrLockTimeout.
func Acquire(ctx context.Context, path string, timeout time.Duration) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600) // #nosec G304 -- path is derived from the configured data dir
	if err != nil {
		return nil, errors.Wrapf(err, "open lock file %s", path)
	}

	deadline := time.Now().Add(timeout)
	for {
		if err = lockFd(f.Fd()); err == nil {
			return &Lock{file: f}, nil
		}
		if time.Now().After(deadline) {
			_ = f.Close()
			return nil, errors.Wrapf(errors.ErrLockTimeout, "lock file %s held by another process", path)
		}
		if sleepErr := ctxutil.Sleep(ctx, retryInterval); sleepErr != nil {
			_ = f.Close()
			return nil, sleepErr
		}
	}
}

// Release unlocks and closes the lock file. Safe to call once; the lock file
// itself is left in place for the next process.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unlockErr := unlockFd(l.file.Fd())
	closeErr := l.file.Close()
	l.file = nil
	if unlockErr != nil {
		return errors.Wrap(unlockErr, "release file lock")
	}
	return closeErr
}

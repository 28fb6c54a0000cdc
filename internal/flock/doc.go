// Package flock provides cross-platform file locking utilities.
//
// The data directory holds workflow, run and step records as JSON files; a
// single exclusive lock on its lock file keeps a second webrun process from
// writing the same tree. Locks are non-blocking at the syscall level, with
// Acquire layering a bounded retry loop on top.
//
// Usage:
//
//	lock, err := flock.Acquire(ctx, filepath.Join(dataDir, "webrun.lock"), 5*time.Second)
//	if err != nil {
//	    // Another process owns the data directory.
//	}
//	defer lock.Release()
package flock

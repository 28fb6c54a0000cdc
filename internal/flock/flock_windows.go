//go:build windows

package flock

import "golang.org/x/sys/windows"

// LockFileEx/UnlockFileEx byte-range parameters. Locking a single byte is
// enough to make the whole lock file exclusive.
// See: https://learn.microsoft.com/en-us/windows/win32/api/fileapi/nf-fileapi-lockfileex
const (
	lockReserved  = 0
	lockBytesLow  = 1
	lockBytesHigh = 0
)

// lockFd takes an exclusive non-blocking lock on the file handle.
// Contention surfaces immediately; Acquire handles retries.
func lockFd(fd uintptr) error {
	return windows.LockFileEx(
		windows.Handle(fd),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		lockReserved,
		lockBytesLow,
		lockBytesHigh,
		&windows.Overlapped{},
	)
}

// unlockFd releases the lock on the file handle.
func unlockFd(fd uintptr) error {
	return windows.UnlockFileEx(
		windows.Handle(fd),
		lockReserved,
		lockBytesLow,
		lockBytesHigh,
		&windows.Overlapped{},
	)
}

//go:build unix

package flock

import "syscall"

// lockFd takes an exclusive non-blocking flock(2) lock on the descriptor.
// Contention surfaces immediately as EWOULDBLOCK; Acquire handles retries.
func lockFd(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_EX|syscall.LOCK_NB)
}

// unlockFd releases the flock(2) lock on the descriptor.
func unlockFd(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_UN)
}

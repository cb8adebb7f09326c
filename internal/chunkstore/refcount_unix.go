//go:build unix

package chunkstore

import "syscall"

// flockExclusive takes a blocking exclusive advisory lock on fd, used
// to serialize refcount read-modify-write cycles per digest.
func flockExclusive(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_EX)
}

func flockUnlock(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_UN)
}

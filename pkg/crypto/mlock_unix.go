//go:build unix

package crypto

import "golang.org/x/sys/unix"

// lockMemory keeps b out of swap when the platform allows it.
// Failure (RLIMIT_MEMLOCK, missing capability) is not an error.
func lockMemory(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	return unix.Mlock(b) == nil
}

func unlockMemory(b []byte) {
	if len(b) == 0 {
		return
	}
	_ = unix.Munlock(b)
}

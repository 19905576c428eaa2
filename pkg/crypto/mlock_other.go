//go:build !unix

package crypto

// lockMemory is a no-op on platforms without mlock.
func lockMemory(b []byte) bool {
	return false
}

func unlockMemory(b []byte) {}

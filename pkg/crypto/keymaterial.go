package crypto

import "sync"

// KeyMaterial is an owned, fixed-length secret buffer.
//
// Exactly one owner is responsible for calling Destroy. Destroy zeroes every
// byte before the reference is dropped and is safe to call more than once.
type KeyMaterial struct {
	mu     sync.RWMutex
	buf    []byte
	locked bool
}

// NewKeyMaterial takes ownership of b. The caller must not use b afterwards
// except through the returned value.
func NewKeyMaterial(b []byte) *KeyMaterial {
	k := &KeyMaterial{buf: b}
	k.locked = lockMemory(b)
	return k
}

// CopyKeyMaterial returns a KeyMaterial holding a private copy of b.
// The caller remains free to wipe b independently.
func CopyKeyMaterial(b []byte) *KeyMaterial {
	dup := make([]byte, len(b))
	copy(dup, b)
	return NewKeyMaterial(dup)
}

// Bytes returns the live buffer, or nil once the key has been destroyed.
// The slice aliases the owned buffer and must not outlive the owner.
func (k *KeyMaterial) Bytes() []byte {
	if k == nil {
		return nil
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.buf
}

// Len returns the key length in bytes, or 0 once destroyed.
func (k *KeyMaterial) Len() int {
	return len(k.Bytes())
}

// IsDestroyed reports whether Destroy has run (or k is nil).
func (k *KeyMaterial) IsDestroyed() bool {
	if k == nil {
		return true
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.buf == nil
}

// Destroy zeroes the buffer and releases it.
func (k *KeyMaterial) Destroy() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.buf == nil {
		return
	}
	SecureWipe(k.buf)
	if k.locked {
		unlockMemory(k.buf)
		k.locked = false
	}
	k.buf = nil
}

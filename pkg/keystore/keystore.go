// Package keystore holds the session's master key.
//
// The Store owns the only long-lived copy of key material in the process.
// Every authentication-failure path ends in Clear.
package keystore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/forest6511/locksy/pkg/crypto"
)

// ErrKeyNotInitialized is returned when no master key is held.
var ErrKeyNotInitialized = crypto.ErrKeyNotInitialized

// ErrInvalidKeyLength is returned when Set receives a buffer that is not 32 bytes.
var ErrInvalidKeyLength = errors.New("keystore: master key must be 32 bytes")

// Store holds at most one master key.
type Store struct {
	mu  sync.RWMutex
	key *crypto.KeyMaterial
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

// Set stores a private copy of b, destroying any previously held key.
// Readers observe either the old key or the new one.
func (s *Store) Set(b []byte) error {
	if len(b) != crypto.KeyLength {
		return ErrInvalidKeyLength
	}
	next := crypto.CopyKeyMaterial(b)

	s.mu.Lock()
	prev := s.key
	s.key = next
	s.mu.Unlock()

	prev.Destroy()
	return nil
}

// SetKey stores a copy of k's bytes. The caller keeps ownership of k.
func (s *Store) SetKey(k *crypto.KeyMaterial) error {
	if k.IsDestroyed() {
		return ErrKeyNotInitialized
	}
	return s.Set(k.Bytes())
}

// DeriveSubKey derives a sub-key for purpose from the held key.
// The caller owns the result and must Destroy it.
func (s *Store) DeriveSubKey(purpose crypto.Purpose, length int) (*crypto.KeyMaterial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.key == nil {
		return nil, ErrKeyNotInitialized
	}
	return crypto.DeriveSubKey(s.key, purpose, length)
}

// WithSubKey derives a 32-byte sub-key, passes it to fn, and destroys it on
// every exit path, including a panic in fn.
func (s *Store) WithSubKey(purpose crypto.Purpose, fn func(*crypto.KeyMaterial) error) error {
	sub, err := s.DeriveSubKey(purpose, crypto.KeyLength)
	if err != nil {
		return fmt.Errorf("keystore: %s: %w", purpose, err)
	}
	defer sub.Destroy()

	return fn(sub)
}

// IsSet reports whether a master key is held.
func (s *Store) IsSet() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key != nil
}

// Clear zeroes the held key synchronously and drops it. Safe to call
// repeatedly and on an empty store.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.key.Destroy()
	s.key = nil
}


// Package crypto provides the key-handling primitives for the Locksy client.
//
// All key material is derived on the client. A low-entropy password is
// stretched into a 256-bit master key with Argon2id, and purpose-scoped
// sub-keys are expanded from it with HKDF-SHA256. Payloads are sealed with
// AES-256-GCM.
//
// # Security Features
//
//   - Argon2id master key derivation (64 MiB memory, 3 iterations, 1 lane)
//   - HKDF-SHA256 sub-keys with versioned purpose labels
//   - AES-256-GCM authenticated encryption with additional data
//   - KeyMaterial buffers with an explicit, idempotent zeroing path
//
// # Example Usage
//
//	salt, _ := crypto.GenerateSalt()
//	master, err := crypto.DeriveMasterKey("password", salt, crypto.DefaultKDFParams)
//	if err != nil {
//		return err
//	}
//	defer master.Destroy()
//
//	sub, err := crypto.DeriveSubKey(master, crypto.PurposePasswords, crypto.KeyLength)
//	if err != nil {
//		return err
//	}
//	defer sub.Destroy()
//
//	ciphertext, nonce, err := crypto.Encrypt(sub.Bytes(), plaintext, aad)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"
)

const (
	// KeyLength is the length of master keys and AES keys in bytes (256 bits).
	KeyLength = 32

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12

	// TagLength is the length of the GCM authentication tag in bytes (128 bits).
	TagLength = 16

	// SaltLength is the length of the per-account Argon2id salt in bytes.
	SaltLength = 16
)

// Sentinel errors returned by crypto functions.
var (
	// ErrKDF indicates the password hashing step failed or was misconfigured.
	ErrKDF = errors.New("crypto: key derivation failed")

	// ErrKeyNotInitialized indicates a key operation ran without a live master key.
	ErrKeyNotInitialized = errors.New("crypto: key not initialized")

	// ErrInvalidKeyLength indicates the key is not 32 bytes.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length, must be 32 bytes")

	// ErrInvalidNonceLength indicates the nonce is not 12 bytes.
	ErrInvalidNonceLength = errors.New("crypto: invalid nonce length, must be 12 bytes")

	// ErrDecryptionFailed indicates decryption or authentication tag verification failed.
	ErrDecryptionFailed = errors.New("crypto: decryption failed, authentication tag verification failed")

	// ErrCiphertextTooShort indicates the ciphertext is shorter than the GCM tag.
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
)

// Encrypt encrypts plaintext using AES-256-GCM authenticated encryption.
//
// A fresh 12-byte nonce is drawn from crypto/rand on every call. The
// authentication tag is appended to the ciphertext and covers aad, which
// may be nil.
//
// Returns:
//   - ciphertext: encrypted data with the 16-byte tag appended
//   - nonce: 12-byte nonce (must travel with the ciphertext)
//   - err: ErrInvalidKeyLength if key is not 32 bytes
func Encrypt(key, plaintext, aad []byte) (ciphertext []byte, nonce []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	ciphertext = gcm.Seal(nil, nonce, plaintext, aad)
	return ciphertext, nonce, nil
}

// Decrypt decrypts ciphertext using AES-256-GCM authenticated encryption.
//
// The tag is verified against ciphertext and aad before any plaintext is
// returned. On mismatch ErrDecryptionFailed is returned and no partial
// output is exposed.
func Decrypt(key, ciphertext, nonce, aad []byte) (plaintext []byte, err error) {
	if len(nonce) != NonceLength {
		return nil, ErrInvalidNonceLength
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err = gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithTagSize(block, TagLength)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return gcm, nil
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// b must stay reachable until the loop has run.
	runtime.KeepAlive(b)
}

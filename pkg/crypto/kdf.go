package crypto

import (
	"context"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// KDFAlgorithm is the only password hashing algorithm the client speaks.
const KDFAlgorithm = "argon2id"

// KDFParams are the Argon2id cost parameters.
type KDFParams struct {
	Memory  uint32 // Memory cost in KiB
	Time    uint32 // Number of passes
	Threads uint8  // Degree of parallelism
	KeyLen  uint32 // Output length in bytes
}

// DefaultKDFParams is the parameter set every account is registered with.
var DefaultKDFParams = KDFParams{
	Memory:  64 * 1024,
	Time:    3,
	Threads: 1,
	KeyLen:  KeyLength,
}

// Validate rejects parameter sets weaker than DefaultKDFParams.
// Derivation never falls back to cheaper costs.
func (p KDFParams) Validate() error {
	switch {
	case p.Memory < DefaultKDFParams.Memory:
		return fmt.Errorf("%w: memory cost %d KiB below minimum %d", ErrKDF, p.Memory, DefaultKDFParams.Memory)
	case p.Time < DefaultKDFParams.Time:
		return fmt.Errorf("%w: time cost %d below minimum %d", ErrKDF, p.Time, DefaultKDFParams.Time)
	case p.Threads < 1:
		return fmt.Errorf("%w: parallelism must be at least 1", ErrKDF)
	case p.KeyLen != KeyLength:
		return fmt.Errorf("%w: output length must be %d bytes, got %d", ErrKDF, KeyLength, p.KeyLen)
	}
	return nil
}

// GenerateSalt returns a fresh random 16-byte account salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveMasterKey stretches password into a 32-byte master key with Argon2id.
//
// The password is hashed as its UTF-8 bytes. The same (password, salt,
// params) always yields the same key. A wrong salt length, weak params or
// a failure inside the primitive (for example when the 64 MiB working set
// cannot be allocated) returns an error wrapping ErrKDF.
func DeriveMasterKey(password string, salt []byte, params KDFParams) (key *KeyMaterial, err error) {
	if len(salt) != SaltLength {
		return nil, fmt.Errorf("%w: salt must be %d bytes, got %d", ErrKDF, SaltLength, len(salt))
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			key = nil
			err = fmt.Errorf("%w: %v", ErrKDF, r)
		}
	}()

	pw := []byte(password)
	defer SecureWipe(pw)

	out := argon2.IDKey(pw, salt, params.Time, params.Memory, params.Threads, params.KeyLen)
	return NewKeyMaterial(out), nil
}

type kdfResult struct {
	key *KeyMaterial
	err error
}

// DeriveMasterKeyContext runs DeriveMasterKey on a separate goroutine so the
// caller can stay responsive and give up when ctx is done. Argon2id itself
// cannot be interrupted; a key that finishes after cancellation is
// destroyed as soon as it arrives.
func DeriveMasterKeyContext(ctx context.Context, password string, salt []byte, params KDFParams) (*KeyMaterial, error) {
	done := make(chan kdfResult, 1)
	go func() {
		key, err := DeriveMasterKey(password, salt, params)
		done <- kdfResult{key: key, err: err}
	}()

	select {
	case res := <-done:
		return res.key, res.err
	case <-ctx.Done():
		go func() {
			res := <-done
			res.key.Destroy()
		}()
		return nil, ctx.Err()
	}
}

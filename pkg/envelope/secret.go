package envelope

import (
	"fmt"

	"github.com/forest6511/locksy/pkg/crypto"
)

// LegacyPasswordsAAD is the fixed AAD of stored secrets written before
// secrets were wrapped in full envelopes.
const LegacyPasswordsAAD = "passwords_v1"

// SealLegacy seals plaintext in the bare legacy format:
// base64(nonce || ciphertext || tag) with AAD "passwords_v1".
func SealLegacy(subKey *crypto.KeyMaterial, plaintext []byte) (string, error) {
	if subKey.IsDestroyed() {
		return "", ErrKeyNotInitialized
	}
	return sealBlob(subKey, []byte(LegacyPasswordsAAD), plaintext)
}

// OpenLegacy opens a bare legacy blob.
func OpenLegacy(subKey *crypto.KeyMaterial, blob string) ([]byte, error) {
	if subKey.IsDestroyed() {
		return nil, ErrKeyNotInitialized
	}
	return openBlob(subKey, blob, []byte(LegacyPasswordsAAD))
}

// SealSecret seals a stored secret and returns the JSON text the server keeps.
func SealSecret(subKey *crypto.KeyMaterial, salt []byte, aad AAD, plaintext []byte) (string, error) {
	env, err := Seal(subKey, salt, aad, plaintext)
	if err != nil {
		return "", err
	}
	data, err := env.Marshal()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// OpenSecret opens a stored secret in either format. JSON envelopes are
// checked against want when want.Email is set.
func OpenSecret(subKey *crypto.KeyMaterial, secret string, want Expectation) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: empty secret", ErrMalformedEnvelope)
	}
	if !isJSONEnvelope(secret) {
		return OpenLegacy(subKey, secret)
	}

	env, err := Parse([]byte(secret))
	if err != nil {
		return nil, err
	}
	if want.Email == "" {
		return Open(subKey, env)
	}
	return OpenExpected(subKey, env, want)
}

package envelope

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/forest6511/locksy/pkg/crypto"
)

// Current envelope format.
const (
	Version             = 1
	EncryptionAlgorithm = "aes-256-gcm"
	TagBits             = crypto.TagLength * 8
)

// KDFParams describes the Argon2id costs used for the account's master key.
type KDFParams struct {
	M       uint32 `json:"m"`
	T       uint32 `json:"t"`
	P       uint8  `json:"p"`
	HashLen uint32 `json:"hashLen"`
}

// KDF is the kdf descriptor carried in both the envelope and its AAD.
type KDF struct {
	Alg    string    `json:"alg"`
	Params KDFParams `json:"params"`
}

// Encryption is the cipher descriptor.
type Encryption struct {
	Alg     string `json:"alg"`
	TagBits int    `json:"tagBits"`
}

// Envelope is the transportable sealed container.
type Envelope struct {
	Version    int        `json:"version"`
	KDF        KDF        `json:"kdf"`
	Encryption Encryption `json:"encryption"`
	Salt       string     `json:"salt"`     // base64 account salt
	AADJSON    string     `json:"aad_json"` // exact bytes covered by the tag
	Data       string     `json:"data_b64"` // base64(nonce || ciphertext || tag)
}

// DefaultKDF is the descriptor for crypto.DefaultKDFParams.
func DefaultKDF() KDF {
	return KDFFromParams(crypto.DefaultKDFParams)
}

// KDFFromParams converts crypto parameters to their wire descriptor.
func KDFFromParams(p crypto.KDFParams) KDF {
	return KDF{
		Alg: crypto.KDFAlgorithm,
		Params: KDFParams{
			M:       p.Memory,
			T:       p.Time,
			P:       p.Threads,
			HashLen: p.KeyLen,
		},
	}
}

// Seal encrypts plaintext under subKey and returns a fresh envelope.
//
// A new nonce is drawn for every call. The rendered AAD string is both
// embedded in the envelope and passed to AES-GCM, so the two can never
// drift. The caller keeps ownership of subKey.
func Seal(subKey *crypto.KeyMaterial, salt []byte, aad AAD, plaintext []byte) (*Envelope, error) {
	if subKey.IsDestroyed() {
		return nil, ErrKeyNotInitialized
	}
	if aad.Version == 0 {
		aad.Version = Version
	}
	if aad.KDF == (KDF{}) {
		aad.KDF = DefaultKDF()
	}

	aadJSON, err := aad.Render()
	if err != nil {
		return nil, err
	}

	blob, err := sealBlob(subKey, []byte(aadJSON), plaintext)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Version: aad.Version,
		KDF:     aad.KDF,
		Encryption: Encryption{
			Alg:     EncryptionAlgorithm,
			TagBits: TagBits,
		},
		Salt:    base64.StdEncoding.EncodeToString(salt),
		AADJSON: aadJSON,
		Data:    blob,
	}, nil
}

// Open verifies and decrypts env with subKey.
//
// The AAD passed to AES-GCM is exactly env.AADJSON. Unknown versions or
// algorithms fail closed with ErrUnsupportedEnvelope. A blob of 12 bytes or
// fewer fails with ErrMalformedEnvelope and a bad tag with
// ErrAuthenticationFailure.
func Open(subKey *crypto.KeyMaterial, env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: nil envelope", ErrMalformedEnvelope)
	}
	if err := env.checkSupported(); err != nil {
		return nil, err
	}
	if subKey.IsDestroyed() {
		return nil, ErrKeyNotInitialized
	}
	return openBlob(subKey, env.Data, []byte(env.AADJSON))
}

// Expectation is the context the opening party trusts independently of
// what the envelope claims about itself.
type Expectation struct {
	Email   string
	Context Context
	KDF     *KDF   // nil means DefaultKDF
	Salt    []byte // nil skips the salt check
}

// OpenExpected reconstructs the expected AAD fields from trusted local
// context and rejects the envelope with ErrAADMismatch when the embedded
// aad_json or salt disagrees, before attempting decryption.
func OpenExpected(subKey *crypto.KeyMaterial, env *Envelope, want Expectation) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: nil envelope", ErrMalformedEnvelope)
	}
	if err := env.checkSupported(); err != nil {
		return nil, err
	}

	got, err := ParseAAD(env.AADJSON)
	if err != nil {
		return nil, err
	}

	wantKDF := DefaultKDF()
	if want.KDF != nil {
		wantKDF = *want.KDF
	}
	wantCtx := want.Context
	if wantCtx != "" {
		if wantCtx, err = wantCtx.canonical(); err != nil {
			return nil, err
		}
	}
	if want.Salt != nil {
		salt, err := env.SaltBytes()
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(salt, want.Salt) {
			return nil, fmt.Errorf("%w: salt", ErrAADMismatch)
		}
	}

	switch {
	case got.Version != env.Version:
		return nil, fmt.Errorf("%w: aad version %d, envelope version %d", ErrAADMismatch, got.Version, env.Version)
	case got.Email != want.Email:
		return nil, fmt.Errorf("%w: email", ErrAADMismatch)
	case got.KDF != wantKDF || got.KDF != env.KDF:
		return nil, fmt.Errorf("%w: kdf descriptor", ErrAADMismatch)
	case wantCtx != "" && got.Context != wantCtx:
		return nil, fmt.Errorf("%w: context %q, want %q", ErrAADMismatch, got.Context, wantCtx)
	}

	return Open(subKey, env)
}

// SaltBytes decodes the envelope's salt.
func (e *Envelope) SaltBytes() ([]byte, error) {
	salt, err := base64.StdEncoding.DecodeString(e.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: salt: %v", ErrMalformedEnvelope, err)
	}
	return salt, nil
}

// Marshal encodes the envelope as JSON.
func (e *Envelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("envelope: failed to marshal: %w", err)
	}
	return data, nil
}

// Parse decodes a JSON envelope. It does not check version support; Open does.
func Parse(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return &env, nil
}

// checkSupported matches every descriptor exhaustively.
func (e *Envelope) checkSupported() error {
	switch e.Version {
	case Version:
	default:
		return fmt.Errorf("%w: version %d", ErrUnsupportedEnvelope, e.Version)
	}
	switch e.KDF.Alg {
	case crypto.KDFAlgorithm:
	default:
		return fmt.Errorf("%w: kdf %q", ErrUnsupportedEnvelope, e.KDF.Alg)
	}
	switch e.Encryption.Alg {
	case EncryptionAlgorithm:
	default:
		return fmt.Errorf("%w: encryption %q", ErrUnsupportedEnvelope, e.Encryption.Alg)
	}
	if e.Encryption.TagBits != TagBits {
		return fmt.Errorf("%w: tag length %d bits", ErrUnsupportedEnvelope, e.Encryption.TagBits)
	}
	return nil
}

func sealBlob(subKey *crypto.KeyMaterial, aad, plaintext []byte) (string, error) {
	ciphertext, nonce, err := crypto.Encrypt(subKey.Bytes(), plaintext, aad)
	if err != nil {
		return "", fmt.Errorf("envelope: seal failed: %w", err)
	}
	blob := make([]byte, 0, len(nonce)+len(ciphertext))
	blob = append(blob, nonce...)
	blob = append(blob, ciphertext...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

func openBlob(subKey *crypto.KeyMaterial, data string, aad []byte) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: data_b64: %v", ErrMalformedEnvelope, err)
	}
	if len(blob) <= crypto.NonceLength {
		return nil, fmt.Errorf("%w: blob is %d bytes", ErrMalformedEnvelope, len(blob))
	}

	plaintext, err := crypto.Decrypt(subKey.Bytes(), blob[crypto.NonceLength:], blob[:crypto.NonceLength], aad)
	switch {
	case err == nil:
		return plaintext, nil
	case errors.Is(err, crypto.ErrCiphertextTooShort):
		return nil, fmt.Errorf("%w: blob shorter than nonce and tag", ErrMalformedEnvelope)
	case errors.Is(err, crypto.ErrDecryptionFailed):
		return nil, ErrAuthenticationFailure
	default:
		return nil, fmt.Errorf("envelope: open failed: %w", err)
	}
}

// isJSONEnvelope reports whether a stored secret looks like a JSON envelope
// rather than a bare legacy blob.
func isJSONEnvelope(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "{")
}

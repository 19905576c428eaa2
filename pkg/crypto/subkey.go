package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Purpose is an HKDF info label. Labels carry a version suffix; changing
// what a sub-key protects means introducing a new label.
type Purpose string

// Sub-key purposes.
const (
	PurposeRegistration    Purpose = "locksy_registration_v1"
	PurposeLogin           Purpose = "locksy_auth_v1"
	PurposePasswords       Purpose = "locksy_passwords_v1"
	PurposeNotes           Purpose = "locksy_notes_v1"
	PurposeCards           Purpose = "locksy_cards_v1"
	PurposeAccountEmail    Purpose = "locksy_account_email_v1"
	PurposeAccountPassword Purpose = "locksy_account_password_v1"
	PurposeAudit           Purpose = "locksy_audit_v1"
)

var purposes = map[Purpose]struct{}{
	PurposeRegistration:    {},
	PurposeLogin:           {},
	PurposePasswords:       {},
	PurposeNotes:           {},
	PurposeCards:           {},
	PurposeAccountEmail:    {},
	PurposeAccountPassword: {},
	PurposeAudit:           {},
}

// Valid reports whether p is one of the known purposes.
func (p Purpose) Valid() bool {
	_, ok := purposes[p]
	return ok
}

func (p Purpose) String() string { return string(p) }

// maxSubKeyLength is the HKDF-SHA256 output limit (255 blocks).
const maxSubKeyLength = 255 * sha256.Size

// DeriveSubKey expands master into a length-byte sub-key for purpose using
// HKDF-SHA256 with an empty salt and info set to the purpose label.
func DeriveSubKey(master *KeyMaterial, purpose Purpose, length int) (*KeyMaterial, error) {
	if master.IsDestroyed() {
		return nil, ErrKeyNotInitialized
	}
	if !purpose.Valid() {
		return nil, fmt.Errorf("crypto: unknown sub-key purpose %q", purpose)
	}
	if length <= 0 || length > maxSubKeyLength {
		return nil, fmt.Errorf("crypto: invalid sub-key length %d", length)
	}

	master.mu.RLock()
	defer master.mu.RUnlock()
	if master.buf == nil {
		return nil, ErrKeyNotInitialized
	}

	r := hkdf.New(sha256.New, master.buf, nil, []byte(purpose))
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		SecureWipe(out)
		return nil, fmt.Errorf("crypto: failed to derive sub-key: %w", err)
	}
	return NewKeyMaterial(out), nil
}

// Package envelope seals and opens the versioned, self-describing
// containers that carry encrypted proofs and stored secrets between the
// client and the server.
package envelope

import (
	"errors"

	"github.com/forest6511/locksy/pkg/crypto"
)

// Envelope errors
var (
	// ErrMalformedEnvelope indicates the envelope or its blob is structurally invalid.
	ErrMalformedEnvelope = errors.New("envelope: malformed envelope")

	// ErrAuthenticationFailure indicates the AEAD tag did not verify.
	// The content must not be trusted and no plaintext is returned.
	ErrAuthenticationFailure = errors.New("envelope: authentication failed")

	// ErrUnsupportedEnvelope indicates a version or algorithm this client does not speak.
	ErrUnsupportedEnvelope = errors.New("envelope: unsupported envelope")

	// ErrAADMismatch indicates the embedded AAD does not match the expected context.
	ErrAADMismatch = errors.New("envelope: aad does not match expected context")

	// ErrKeyNotInitialized is returned when sealing or opening without a live key.
	ErrKeyNotInitialized = crypto.ErrKeyNotInitialized
)

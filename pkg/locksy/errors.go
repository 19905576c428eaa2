package locksy

import (
	"errors"

	"github.com/forest6511/locksy/pkg/api"
	"github.com/forest6511/locksy/pkg/breach"
	"github.com/forest6511/locksy/pkg/crypto"
	"github.com/forest6511/locksy/pkg/envelope"
	"github.com/forest6511/locksy/pkg/session"
	"github.com/forest6511/locksy/pkg/vault"
)

var (
	// ErrInvalidCredentials covers an unknown email, a wrong password and a
	// rejected login proof alike, so the caller cannot tell which.
	ErrInvalidCredentials = errors.New("locksy: invalid credentials")
	ErrInvalidEmail       = errors.New("locksy: invalid email address")
	ErrBreachedPassword   = errors.New("locksy: password appears in a known breach")
	ErrSessionActive      = errors.New("locksy: a session is already active, log out first")
	ErrEntryNotFound      = errors.New("locksy: entry not found")
	ErrAmbiguousEntry     = errors.New("locksy: more than one entry has this name")
	ErrEmptyName          = errors.New("locksy: entry name is required")

	// ErrCooldownActive is returned by Login while failed attempts are
	// being throttled.
	ErrCooldownActive = vault.ErrCooldownActive
)

// Error codes recorded in the activity log.
const (
	CodeAuthFailed  = "AUTH_FAILED"
	CodeCooldown    = "COOLDOWN"
	CodeExpired     = "SESSION_EXPIRED"
	CodeNotFound    = "NOT_FOUND"
	CodeNetwork     = "NETWORK"
	CodeRejected    = "REMOTE_REJECTED"
	CodeCrypto      = "CRYPTO"
	CodeUnavailable = "UNAVAILABLE"
	CodeInternal    = "INTERNAL"
)

// ErrorCode classifies err for the activity log without carrying any of its
// text, which may name an entry.
func ErrorCode(err error) string {
	var netErr *api.NetworkError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return CodeAuthFailed
	case errors.Is(err, ErrCooldownActive):
		return CodeCooldown
	case errors.Is(err, session.ErrSessionExpired), errors.Is(err, session.ErrNotAuthenticated):
		return CodeExpired
	case errors.Is(err, ErrEntryNotFound), errors.Is(err, api.ErrNotFound):
		return CodeNotFound
	case errors.As(err, &netErr):
		return CodeNetwork
	case errors.Is(err, api.ErrRemoteRejected):
		return CodeRejected
	case errors.Is(err, breach.ErrUnavailable):
		return CodeUnavailable
	case isCryptoError(err):
		return CodeCrypto
	default:
		return CodeInternal
	}
}

// isCryptoError reports the failures that must abort a flow rather than be
// retried.
func isCryptoError(err error) bool {
	return errors.Is(err, crypto.ErrKDF) ||
		errors.Is(err, crypto.ErrKeyNotInitialized) ||
		errors.Is(err, envelope.ErrMalformedEnvelope) ||
		errors.Is(err, envelope.ErrAuthenticationFailure) ||
		errors.Is(err, envelope.ErrUnsupportedEnvelope) ||
		errors.Is(err, envelope.ErrAADMismatch)
}

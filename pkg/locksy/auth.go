package locksy

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/forest6511/locksy/pkg/api"
	"github.com/forest6511/locksy/pkg/audit"
	"github.com/forest6511/locksy/pkg/crypto"
	"github.com/forest6511/locksy/pkg/envelope"
	"github.com/forest6511/locksy/pkg/security"
	"github.com/forest6511/locksy/pkg/session"
)

// BreachStatus is the outcome of the master password breach check.
type BreachStatus string

const (
	BreachClean       BreachStatus = "clean"
	BreachFound       BreachStatus = "found"
	BreachUnavailable BreachStatus = "unavailable"
)

// RegisterResult describes a completed registration.
type RegisterResult struct {
	Email       string
	Message     string
	Strength    security.PasswordStrength
	Warnings    []string
	Breach      BreachStatus
	BreachCount int
}

// Register creates an account for email. It never leaves a session behind:
// the key store is cleared on every path.
func (c *Client) Register(ctx context.Context, email, password string) (*RegisterResult, error) {
	if c.session.State() != session.Unauthenticated {
		return nil, ErrSessionActive
	}

	email = CanonicalEmail(email)
	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}

	policy, err := security.ValidateMasterPassword(password, email)
	if err != nil {
		return nil, err
	}
	result := &RegisterResult{
		Email:    email,
		Strength: policy.Strength,
		Warnings: policy.Warnings,
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, err
	}

	// The breach lookup runs alongside the KDF. A blocking match cancels
	// the derivation.
	var master *crypto.KeyMaterial
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := c.breach.CheckCount(gctx, password)
		switch {
		case err != nil:
			result.Breach = BreachUnavailable
			c.logger.Warn("breach check unavailable, continuing", slog.Any("error", err))
		case n > 0:
			result.Breach = BreachFound
			result.BreachCount = n
			if c.breachPolicy == BreachBlock {
				return ErrBreachedPassword
			}
		default:
			result.Breach = BreachClean
		}
		return nil
	})
	g.Go(func() error {
		k, err := crypto.DeriveMasterKeyContext(gctx, password, salt, c.kdf)
		master = k
		return err
	})
	if err := g.Wait(); err != nil {
		master.Destroy()
		return nil, err
	}
	defer master.Destroy()
	defer c.keys.Clear()

	if err := c.keys.SetKey(master); err != nil {
		return nil, err
	}

	var proof *envelope.Envelope
	err = c.keys.WithSubKey(crypto.PurposeRegistration, func(sub *crypto.KeyMaterial) error {
		var err error
		proof, err = envelope.Seal(sub, salt, c.aad(email, envelope.ContextCreated), []byte(RegistrationProof))
		return err
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.api.Register(ctx, &api.RegisterRequest{
		Email:        email,
		PasswordHash: base64.StdEncoding.EncodeToString(master.Bytes()),
		Salt:         base64.StdEncoding.EncodeToString(salt),
		Envelope:     proof,
	})
	if err != nil {
		return nil, err
	}
	result.Message = resp.Message

	c.recordRegistration(email)
	c.logger.Info("account registered", slog.String("strength", result.Strength.String()))
	return result, nil
}

// recordRegistration writes the first record of the account's activity
// log while the key is still held.
func (c *Client) recordRegistration(email string) {
	if c.dataDir == "" {
		return
	}
	if err := c.openAccount(email); err != nil {
		c.logger.Warn("failed to open account directory", slog.Any("error", err))
		return
	}
	l := c.Audit()
	err := c.keys.WithSubKey(crypto.PurposeAudit, func(k *crypto.KeyMaterial) error {
		return l.SetHMACKey(k.Bytes())
	})
	if err == nil {
		err = l.LogSuccess(audit.OpRegister, c.source, "")
	}
	l.ClearKey()
	if err != nil {
		c.logger.Warn("audit write failed", slog.String("op", audit.OpRegister), slog.Any("error", err))
	}
}

// Login authenticates email and starts a session. It returns
// ErrSessionActive while a session is live. An expired session is logged
// out and replaced.
func (c *Client) Login(ctx context.Context, email, password string) (err error) {
	switch c.session.State() {
	case session.Authenticated, session.Refreshing:
		return ErrSessionActive
	}

	email = CanonicalEmail(email)
	if !validEmail(email) {
		return ErrInvalidEmail
	}
	if password == "" {
		return ErrInvalidCredentials
	}

	if c.session.State() == session.Expired {
		_ = c.Logout(ctx)
	}

	if err := c.openAccount(email); err != nil {
		return err
	}
	if v := c.Vault(); v != nil {
		if err := v.CheckCooldown(); err != nil {
			return err
		}
	}

	defer func() {
		if err != nil {
			c.keys.Clear()
			c.recordFailedLogin(err)
		}
	}()

	saltB64, err := c.api.Salt(ctx, email)
	if err != nil {
		return credentialError(err)
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil || len(salt) != crypto.SaltLength {
		return ErrInvalidCredentials
	}

	master, err := crypto.DeriveMasterKeyContext(ctx, password, salt, c.kdf)
	if err != nil {
		return err
	}
	defer master.Destroy()

	if err := c.keys.SetKey(master); err != nil {
		return err
	}

	var proof *envelope.Envelope
	err = c.keys.WithSubKey(crypto.PurposeLogin, func(sub *crypto.KeyMaterial) error {
		var err error
		proof, err = envelope.Seal(sub, salt, c.aad(email, envelope.ContextLogin), []byte(LoginProof))
		return err
	})
	if err != nil {
		return err
	}

	resp, err := c.api.Login(ctx, &api.LoginRequest{
		Email:        email,
		PasswordHash: base64.StdEncoding.EncodeToString(master.Bytes()),
		Envelope:     proof,
	})
	if err != nil {
		return credentialError(err)
	}

	c.mu.Lock()
	c.email = email
	c.salt = salt
	c.mu.Unlock()

	if err := c.session.Start(session.Tokens{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}); err != nil {
		return fmt.Errorf("locksy: login response: %w", err)
	}
	return nil
}

// credentialError hides whether the email exists. Transport failures and
// server errors keep their own type.
func credentialError(err error) error {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) &&
		apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 &&
		apiErr.StatusCode != http.StatusTooManyRequests {
		return ErrInvalidCredentials
	}
	return err
}

// recordFailedLogin counts a rejected password toward the cooldown. No
// audit record is possible here: the audit key derives from the master key.
func (c *Client) recordFailedLogin(err error) {
	c.mu.Lock()
	c.email = ""
	c.salt = nil
	c.mu.Unlock()

	v := c.Vault()
	if v == nil || !errors.Is(err, ErrInvalidCredentials) {
		return
	}
	wait, rerr := v.RecordFailedAttempt()
	if rerr != nil {
		c.logger.Warn("failed to record login attempt", slog.Any("error", rerr))
		return
	}
	if wait > 0 {
		c.logger.Warn("too many failed login attempts", slog.Duration("cooldown", wait))
	}
}

// afterLogin installs the audit key and converts the failed attempts
// recorded since the last success into one audit record.
func (c *Client) afterLogin() {
	l := c.Audit()
	if l == nil {
		return
	}
	err := c.keys.WithSubKey(crypto.PurposeAudit, func(k *crypto.KeyMaterial) error {
		return l.SetHMACKey(k.Bytes())
	})
	if err != nil {
		c.logger.Warn("failed to set audit key", slog.Any("error", err))
		return
	}

	if v := c.Vault(); v != nil {
		if state, err := v.GetLockState(); err == nil && state.FailedAttempts > 0 {
			c.logAudit(l, audit.OpLoginFailed, audit.ResultError, "", &audit.ErrorInfo{Code: CodeAuthFailed},
				map[string]any{
					"attempts":     state.FailedAttempts,
					"last_attempt": state.LastAttempt.UTC().Format(time.RFC3339),
				})
		}
		if err := v.ClearLockState(); err != nil {
			c.logger.Warn("failed to clear login attempts", slog.Any("error", err))
		}
	}
	c.logAudit(l, audit.OpLogin, audit.ResultSuccess, "", nil, nil)
}

// Logout revokes the session on a best-effort basis and clears every key.
// It does not fail on network errors.
func (c *Client) Logout(ctx context.Context) error {
	if rt := c.session.RefreshToken(); rt != "" {
		if err := c.api.Logout(ctx, rt); err != nil {
			c.logger.Warn("logout request failed", slog.Any("error", err))
		}
	}
	c.session.End()

	c.mu.Lock()
	c.email = ""
	c.salt = nil
	c.mu.Unlock()
	return nil
}

// onTransition records session changes while the audit key is still set.
func (c *Client) onTransition(tr session.Transition) {
	c.logger.Debug("session transition",
		slog.String("from", tr.From.String()),
		slog.String("to", tr.To.String()),
		slog.String("event", tr.Event.String()))

	switch tr.Event {
	case session.LoginSucceeded:
		c.afterLogin()
	case session.RefreshSucceeded:
		c.record(audit.OpSessionRefresh, "", nil)
	case session.RefreshFailed:
		c.record(audit.OpSessionExpired, "", session.ErrSessionExpired)
	case session.LoggedOut:
		if tr.From != session.Unauthenticated {
			c.record(audit.OpLogout, "", nil)
		}
	}
}

// onExpired runs after logout and after a failed refresh.
func (c *Client) onExpired() {
	c.keys.Clear()
	if l := c.Audit(); l != nil {
		l.ClearKey()
	}
}

// record writes one activity log entry. Failures are logged, never returned.
func (c *Client) record(op, entry string, err error) {
	l := c.Audit()
	if l == nil || !l.HasKey() {
		return
	}
	if err != nil {
		c.logAudit(l, op, audit.ResultError, entry, &audit.ErrorInfo{Code: ErrorCode(err)}, nil)
		return
	}
	c.logAudit(l, op, audit.ResultSuccess, entry, nil, nil)
}

// RecordDenied logs an operation refused by an access policy.
func (c *Client) RecordDenied(op, entry, reason string) {
	l := c.Audit()
	if l == nil || !l.HasKey() {
		return
	}
	if err := l.LogDenied(op, c.source, entry, reason); err != nil {
		c.logger.Warn("audit write failed", slog.String("op", op), slog.Any("error", err))
	}
}

func (c *Client) logAudit(l *audit.Logger, op, result, entry string, info *audit.ErrorInfo, ctx map[string]any) {
	if err := l.Log(op, c.source, result, entry, info, ctx); err != nil {
		c.logger.Warn("audit write failed", slog.String("op", op), slog.Any("error", err))
	}
}

// CheckPassword looks up a password that is not stored. No session is
// needed.
func (c *Client) CheckPassword(ctx context.Context, password string) (int, error) {
	return c.breach.CheckCount(ctx, password)
}

// Package locksy is the password manager client.
//
// A Client runs every flow that needs key material: registration, login,
// and reading and writing stored passwords. The remote API only ever sees
// the base64 master-key hash, sealed proofs and sealed secrets. Keys live
// in a keystore.Store for the length of a session and are cleared at
// logout, on a failed refresh, and on every failed authentication.
package locksy

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/forest6511/locksy/pkg/api"
	"github.com/forest6511/locksy/pkg/audit"
	"github.com/forest6511/locksy/pkg/breach"
	"github.com/forest6511/locksy/pkg/crypto"
	"github.com/forest6511/locksy/pkg/envelope"
	"github.com/forest6511/locksy/pkg/keystore"
	"github.com/forest6511/locksy/pkg/session"
	"github.com/forest6511/locksy/pkg/vault"
)

// Plaintexts of the registration and login proofs.
const (
	RegistrationProof = "registration_proof_v1"
	LoginProof        = "login_proof_v1"
)

// AuditDirName is the activity log directory inside an account directory.
const AuditDirName = "audit"

// BreachPolicy decides what a breached master password does at registration.
type BreachPolicy string

const (
	BreachWarn  BreachPolicy = "warn"
	BreachBlock BreachPolicy = "block"
)

// Client is a password manager session for one account at a time.
type Client struct {
	api     *api.Client
	keys    *keystore.Store
	session *session.Manager
	breach  *breach.Checker
	logger  *slog.Logger
	now     func() time.Time

	kdf          crypto.KDFParams
	dataDir      string
	offline      bool
	breachPolicy BreachPolicy
	source       string

	refreshTimeout time.Duration

	mu      sync.Mutex
	email   string
	salt    []byte
	account string // account directory, "" without a data dir
	vault   *vault.Vault
	audit   *audit.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Key material and passwords are never logged.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithBreachChecker replaces the default breach checker.
func WithBreachChecker(b *breach.Checker) Option {
	return func(c *Client) { c.breach = b }
}

// WithBreachPolicy sets what a breached master password does at registration.
func WithBreachPolicy(p BreachPolicy) Option {
	return func(c *Client) { c.breachPolicy = p }
}

// WithDataDir enables the per-account offline mirror, login throttle and
// activity log under dir.
func WithDataDir(dir string) Option {
	return func(c *Client) { c.dataDir = dir }
}

// WithOfflineFallback controls whether ListPasswords falls back to the
// offline mirror on a network error. It has no effect without a data dir.
func WithOfflineFallback(enabled bool) Option {
	return func(c *Client) { c.offline = enabled }
}

// WithAuditSource tags activity log records (audit.SourceCLI or audit.SourceMCP).
func WithAuditSource(source string) Option {
	return func(c *Client) { c.source = source }
}

// WithRefreshTimeout bounds each session refresh.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) { c.refreshTimeout = d }
}

// WithClock overrides the time source used for AAD timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New builds a client on top of apiClient and installs its session as the
// API's token source.
func New(apiClient *api.Client, opts ...Option) *Client {
	c := &Client{
		api:          apiClient,
		keys:         keystore.New(),
		breach:       breach.New(),
		logger:       slog.New(slog.DiscardHandler),
		now:          time.Now,
		kdf:          crypto.DefaultKDFParams,
		offline:      true,
		breachPolicy: BreachWarn,
		source:       audit.SourceCLI,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.session = session.NewManager(apiRefresher{apiClient},
		session.WithRefreshTimeout(c.refreshTimeout),
		session.WithLogger(c.logger))

	apiClient.SetTokenSource(c.session)
	c.session.OnTransition(c.onTransition)
	c.session.OnExpired(c.onExpired)
	return c
}

// apiRefresher adapts the API refresh endpoint to session.Refresher.
type apiRefresher struct {
	api *api.Client
}

func (r apiRefresher) Refresh(ctx context.Context, refreshToken string) (session.Tokens, error) {
	pair, err := r.api.Refresh(ctx, refreshToken)
	if err != nil {
		return session.Tokens{}, err
	}
	return session.Tokens{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

// CanonicalEmail trims, NFC-normalises and lowercases an email address.
// The result is the account identifier bound into every AAD.
func CanonicalEmail(email string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(email)))
}

func validEmail(email string) bool {
	local, domain, ok := strings.Cut(email, "@")
	return ok && local != "" && domain != "" && !strings.ContainsAny(email, " \t\r\n")
}

// Email returns the logged-in account, or "".
func (c *Client) Email() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.email
}

// State returns the session state.
func (c *Client) State() session.State {
	return c.session.State()
}

// Session exposes the session manager.
func (c *Client) Session() *session.Manager {
	return c.session
}

// Audit returns the activity log of the current account, or nil without a
// data dir. Its key is set only while logged in.
func (c *Client) Audit() *audit.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audit
}

// Vault returns the offline mirror of the current account, or nil.
func (c *Client) Vault() *vault.Vault {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vault
}

// Close ends the session locally and releases the account's files.
func (c *Client) Close() error {
	c.session.End()
	c.keys.Clear()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeAccountLocked()
}

// openAccount switches the client to email's account directory.
func (c *Client) openAccount(email string) error {
	if c.dataDir == "" {
		return nil
	}
	dir := vault.AccountDir(c.dataDir, email)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.account == dir {
		return nil
	}
	if err := c.closeAccountLocked(); err != nil {
		c.logger.Warn("failed to close previous account", slog.Any("error", err))
	}

	v, err := vault.Open(dir, vault.WithLogger(c.logger))
	if err != nil {
		return err
	}
	c.vault = v
	c.audit = audit.NewLogger(filepath.Join(dir, AuditDirName), audit.WithLogger(c.logger))
	c.account = dir
	return nil
}

func (c *Client) closeAccountLocked() error {
	var err error
	if c.audit != nil {
		c.audit.ClearKey()
		c.audit = nil
	}
	if c.vault != nil {
		err = c.vault.Close()
		c.vault = nil
	}
	c.account = ""
	return err
}

// aad builds the authenticated context for a proof or secret.
func (c *Client) aad(email string, ctx envelope.Context) envelope.AAD {
	return envelope.AAD{
		Version: envelope.Version,
		Email:   email,
		KDF:     envelope.KDFFromParams(c.kdf),
		Context: ctx,
		At:      c.now().UnixMilli(),
	}
}

// accountState returns the logged-in email and salt.
func (c *Client) accountState() (string, []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.email, c.salt
}

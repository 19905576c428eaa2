// Package session holds the authenticated session and serialises token
// refresh.
//
// At most one refresh is in flight. Callers that need a token while it runs
// wait on an explicit queue and are all resolved (or all rejected) when the
// refresh completes.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultRefreshTimeout bounds a single refresh call.
const DefaultRefreshTimeout = 30 * time.Second

var (
	// ErrNotAuthenticated indicates no session exists.
	ErrNotAuthenticated = errors.New("session: not authenticated")
	// ErrSessionExpired indicates the refresh token was rejected; log in again.
	ErrSessionExpired = errors.New("session: expired")
	// ErrInvalidTokens indicates Start was given an empty token.
	ErrInvalidTokens = errors.New("session: empty access or refresh token")
)

// Tokens is an access/refresh token pair.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// Refresher exchanges a refresh token for a rotated pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (Tokens, error)

func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	return f(ctx, refreshToken)
}

type outcome struct {
	token string
	err   error
}

// Manager owns the session tokens.
type Manager struct {
	mu        sync.Mutex
	state     State
	tokens    Tokens
	waiters   []chan outcome
	gen       uint64
	refresher Refresher
	timeout   time.Duration
	logger    *slog.Logger

	hooks     []func()
	observers []func(Transition)
}

// Option configures a Manager.
type Option func(*Manager)

// WithRefreshTimeout bounds each refresh call.
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates an unauthenticated session.
func NewManager(r Refresher, opts ...Option) *Manager {
	m := &Manager{
		state:     Unauthenticated,
		refresher: r,
		timeout:   DefaultRefreshTimeout,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnExpired registers fn to run when the session ends, by logout or by a
// failed refresh. Hooks run outside the lock, in registration order.
func (m *Manager) OnExpired(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// OnTransition registers fn to observe every state change.
func (m *Manager) OnTransition(fn func(Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RefreshToken returns the current refresh token, or "" without a session.
func (m *Manager) RefreshToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens.RefreshToken
}

// Start installs the tokens from a successful login.
func (m *Manager) Start(t Tokens) error {
	if t.AccessToken == "" || t.RefreshToken == "" {
		return ErrInvalidTokens
	}
	m.mu.Lock()
	tr, err := m.fire(LoginSucceeded)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.tokens = t
	observers := m.observers
	m.mu.Unlock()

	notify(observers, tr)
	return nil
}

// EnsureValidToken returns a usable access token, waiting for an in-flight
// refresh if there is one.
func (m *Manager) EnsureValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	switch m.state {
	case Authenticated:
		token := m.tokens.AccessToken
		m.mu.Unlock()
		return token, nil
	case Refreshing:
		ch := m.enqueue()
		m.mu.Unlock()
		return m.wait(ctx, ch)
	case Expired:
		m.mu.Unlock()
		return "", ErrSessionExpired
	default:
		m.mu.Unlock()
		return "", ErrNotAuthenticated
	}
}

// Token implements api.TokenSource.
func (m *Manager) Token(ctx context.Context) (string, error) {
	return m.EnsureValidToken(ctx)
}

// Refresh replaces stale with a new access token. If the token was already
// rotated it returns the current one. If a refresh is running the caller
// joins its queue. Otherwise the caller starts the single refresh.
func (m *Manager) Refresh(ctx context.Context, stale string) (string, error) {
	m.mu.Lock()
	switch m.state {
	case Unauthenticated:
		m.mu.Unlock()
		return "", ErrNotAuthenticated
	case Expired:
		m.mu.Unlock()
		return "", ErrSessionExpired
	case Refreshing:
		ch := m.enqueue()
		m.mu.Unlock()
		return m.wait(ctx, ch)
	}

	if m.tokens.AccessToken != stale {
		token := m.tokens.AccessToken
		m.mu.Unlock()
		return token, nil
	}

	tr, err := m.fire(RefreshStarted)
	if err != nil {
		m.mu.Unlock()
		return "", err
	}
	m.gen++
	gen := m.gen
	refreshToken := m.tokens.RefreshToken
	ch := m.enqueue()
	observers := m.observers
	m.mu.Unlock()

	notify(observers, tr)

	// The refresh outlives the initiator's context so that a caller giving
	// up does not expire the session for everyone queued behind it.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	go func() {
		defer cancel()
		t, err := m.refresher.Refresh(rctx, refreshToken)
		if err == nil && (t.AccessToken == "" || t.RefreshToken == "") {
			err = ErrInvalidTokens
		}
		m.resolve(gen, t, err)
	}()

	return m.wait(ctx, ch)
}

// End logs out: tokens are dropped, queued callers are rejected and the
// expiry hooks run.
func (m *Manager) End() {
	m.mu.Lock()
	tr, _ := m.fire(LoggedOut)
	m.tokens = Tokens{}
	waiters := m.drain()
	hooks, observers := m.hooks, m.observers
	m.mu.Unlock()

	for _, ch := range waiters {
		ch <- outcome{err: ErrNotAuthenticated}
	}
	notify(observers, tr)
	runHooks(hooks)
}

func (m *Manager) resolve(gen uint64, t Tokens, err error) {
	m.mu.Lock()
	if m.state != Refreshing || m.gen != gen {
		// Logged out while the refresh was running; End already rejected
		// the queue.
		m.mu.Unlock()
		return
	}

	var tr Transition
	var res outcome
	if err != nil {
		tr, _ = m.fire(RefreshFailed)
		m.tokens = Tokens{}
		res = outcome{err: errors.Join(ErrSessionExpired, err)}
		m.logger.Warn("session refresh failed", slog.Any("error", err))
	} else {
		tr, _ = m.fire(RefreshSucceeded)
		m.tokens = t
		res = outcome{token: t.AccessToken}
		m.logger.Debug("session refreshed")
	}
	waiters := m.drain()
	hooks, observers := m.hooks, m.observers
	m.mu.Unlock()

	for _, ch := range waiters {
		ch <- res
	}
	notify(observers, tr)
	if err != nil {
		runHooks(hooks)
	}
}

// fire applies ev. The caller holds mu.
func (m *Manager) fire(ev Event) (Transition, error) {
	to, err := Next(m.state, ev)
	if err != nil {
		return Transition{}, err
	}
	tr := Transition{From: m.state, To: to, Event: ev}
	m.state = to
	return tr, nil
}

// enqueue adds a waiter. The caller holds mu.
func (m *Manager) enqueue() chan outcome {
	ch := make(chan outcome, 1)
	m.waiters = append(m.waiters, ch)
	return ch
}

// drain empties the queue. The caller holds mu.
func (m *Manager) drain() []chan outcome {
	w := m.waiters
	m.waiters = nil
	return w
}

func (m *Manager) wait(ctx context.Context, ch chan outcome) (string, error) {
	select {
	case res := <-ch:
		return res.token, res.err
	case <-ctx.Done():
		m.mu.Lock()
		for i, w := range m.waiters {
			if w == ch {
				m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
		return "", ctx.Err()
	}
}

func notify(observers []func(Transition), tr Transition) {
	for _, fn := range observers {
		fn(tr)
	}
}

func runHooks(hooks []func()) {
	for _, fn := range hooks {
		fn()
	}
}

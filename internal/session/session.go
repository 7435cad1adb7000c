// Package session owns the authenticated-session lifecycle of the client:
// restoring a persisted credential at start, login, logout, identity
// refresh and the forced reset that follows any 401 from the content
// service.
//
// A Manager is attached to the API gateway as its credential source and as
// an unauthorized handler, so the gateway reads the current token without
// importing this package and can reset the session from any call site.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"peablog/internal/apiclient"
	"peablog/internal/models"
	"peablog/internal/storage"
)

// ErrNotAuthenticated is returned by operations that need a credential when
// none is held.
var ErrNotAuthenticated = errors.New("session: not authenticated")

// Phase is the lifecycle position of the session.
type Phase int

const (
	PhaseAnonymous Phase = iota
	PhaseInitializing
	PhaseAuthenticating
	PhaseAuthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Reason tells reset subscribers why the session was cleared.
type Reason string

const (
	ReasonLogout          Reason = "logout"
	ReasonBootstrapFailed Reason = "bootstrap_failed"
	ReasonRefreshFailed   Reason = "refresh_failed"
	ReasonSessionExpired  Reason = "session_expired"
)

// Gateway is the part of the API client the session needs.
type Gateway interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
}

// State is a point-in-time copy of the session.
type State struct {
	Token       string
	User        *models.User
	Initialized bool
	phase       Phase
}

// Phase reports the lifecycle position captured in the snapshot.
func (s State) Phase() Phase { return s.phase }

// IsLoggedIn reports whether both a credential and an identity are held.
func (s State) IsLoggedIn() bool { return s.Token != "" && s.User != nil }

// IsAdmin reports whether the held identity has the admin role. Advisory only:
// the content service enforces roles.
func (s State) IsAdmin() bool { return s.User.IsAdmin() }

// Manager holds the session. It is safe for concurrent use.
type Manager struct {
	gw     Gateway
	store  storage.Store
	logger *slog.Logger

	bootOnce sync.Once

	mu          sync.RWMutex
	token       string
	user        *models.User
	initialized bool
	phase       Phase

	subMu  sync.Mutex
	subs   map[int]func(Reason)
	nextID int
}

// New creates a manager that calls the service through gw and persists the
// credential in store. A nil logger uses slog.Default.
func New(gw Gateway, store storage.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		gw:     gw,
		store:  store,
		logger: logger,
		subs:   make(map[int]func(Reason)),
	}
}

// Attach registers m as c's credential source and unauthorized handler.
// The returned func detaches the unauthorized handler.
func (m *Manager) Attach(c *apiclient.Client) (detach func()) {
	c.SetCredentials(m)
	return c.OnUnauthorized(m.HandleUnauthorized)
}

// Token returns the current credential, or "" when anonymous.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// State returns a snapshot of the session.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() State {
	st := State{Token: m.token, Initialized: m.initialized, phase: m.phase}
	if m.user != nil {
		u := *m.user
		st.User = &u
	}
	return st
}

// OnReset subscribes fn to session resets. The returned func unsubscribes.
func (m *Manager) OnReset(fn func(Reason)) (unsubscribe func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.subs, id)
	}
}

// Bootstrap restores the session from durable storage. With a persisted
// credential it asks the service who the credential belongs to; a failure
// clears the credential locally. Initialized becomes true exactly once, when
// the first call finishes. Later calls only return the current state.
func (m *Manager) Bootstrap(ctx context.Context) State {
	m.bootOnce.Do(func() { m.bootstrap(ctx) })
	return m.State()
}

func (m *Manager) bootstrap(ctx context.Context) {
	m.mu.Lock()
	m.phase = PhaseInitializing
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.initialized = true
		if m.token != "" && m.user != nil {
			m.phase = PhaseAuthenticated
		} else {
			m.phase = PhaseAnonymous
		}
		m.mu.Unlock()
	}()

	token, ok, err := m.store.Get(ctx, storage.KeyToken)
	if err != nil {
		m.logger.Warn("session read persisted token", "error", err)
		return
	}
	if !ok || token == "" {
		return
	}

	m.mu.Lock()
	m.token = token
	m.mu.Unlock()

	var user models.User
	if err := m.gw.Get(ctx, "/auth/me", nil, &user); err != nil {
		m.logger.Warn("session bootstrap failed", "error", err)
		if m.clearLocal(ctx) {
			m.notify(ReasonBootstrapFailed)
		}
		return
	}
	m.setIdentity(token, &user)
	m.logger.Info("session restored", "username", user.Username)
}

// Login exchanges credentials for a token and identity. On failure the
// previous session is left as it was and the error is returned.
func (m *Manager) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	m.mu.Lock()
	prev := m.phase
	m.phase = PhaseAuthenticating
	m.mu.Unlock()

	restore := func() {
		m.mu.Lock()
		if m.phase == PhaseAuthenticating {
			m.phase = prev
		}
		m.mu.Unlock()
	}

	var resp models.LoginResponse
	if err := m.gw.Post(ctx, "/auth/login", req, &resp); err != nil {
		restore()
		m.logger.Warn("session login failed", "username", req.Username, "error", err)
		return nil, fmt.Errorf("session login: %w", err)
	}
	if resp.Token == "" {
		restore()
		return nil, fmt.Errorf("session login: response carried no token")
	}

	user := resp.User
	m.mu.Lock()
	m.token = resp.Token
	m.user = &user
	m.phase = PhaseAuthenticated
	m.mu.Unlock()

	if err := m.store.Set(ctx, storage.KeyToken, resp.Token); err != nil {
		m.logger.Warn("session persist token", "error", err)
	}
	m.logger.Info("session login", "username", user.Username, "role", user.Role)
	return &resp, nil
}

// Logout tells the service to drop the credential, then clears the session
// locally whatever the service answered. Subscribers hear about it once: a
// 401 from the remote logout has already reset the session as expired.
func (m *Manager) Logout(ctx context.Context) {
	if m.Token() != "" {
		if err := m.gw.Post(ctx, "/auth/logout", nil, nil); err != nil {
			m.logger.Warn("session remote logout failed", "error", err)
		}
	}
	if m.clearLocal(ctx) {
		m.notify(ReasonLogout)
	}
}

// RefreshIdentity re-reads the identity for the current credential. A
// failure clears the session locally and is returned. Without a credential
// no call is made.
func (m *Manager) RefreshIdentity(ctx context.Context) error {
	token := m.Token()
	if token == "" {
		return nil
	}

	var user models.User
	if err := m.gw.Get(ctx, "/auth/me", nil, &user); err != nil {
		m.logger.Warn("session refresh identity failed", "error", err)
		if m.clearLocal(ctx) {
			m.notify(ReasonRefreshFailed)
		}
		return fmt.Errorf("session refresh identity: %w", err)
	}
	m.setIdentity(token, &user)
	return nil
}

// RefreshToken rotates the credential. On failure the session is unchanged.
func (m *Manager) RefreshToken(ctx context.Context) error {
	old := m.Token()
	if old == "" {
		return ErrNotAuthenticated
	}

	var resp models.TokenResponse
	if err := m.gw.Post(ctx, "/auth/refresh", nil, &resp); err != nil {
		return fmt.Errorf("session refresh token: %w", err)
	}
	if resp.Token == "" {
		return fmt.Errorf("session refresh token: response carried no token")
	}

	m.mu.Lock()
	if m.token != old {
		// Logged out or replaced while the call was in flight.
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	m.token = resp.Token
	m.mu.Unlock()

	if err := m.store.Set(ctx, storage.KeyToken, resp.Token); err != nil {
		m.logger.Warn("session persist token", "error", err)
	}
	return nil
}

// HandleUnauthorized is the gateway's reaction to a 401: the credential is
// discarded and subscribers are told to send the user to login.
func (m *Manager) HandleUnauthorized(ctx context.Context) {
	m.clearLocal(ctx)
	m.notify(ReasonSessionExpired)
}

// setIdentity applies user only if the credential it was fetched with is
// still the current one.
func (m *Manager) setIdentity(token string, user *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != token {
		return
	}
	m.user = user
	if m.initialized {
		m.phase = PhaseAuthenticated
	}
}

// clearLocal drops the credential and identity and deletes the persisted
// token. It reports whether anything was held.
func (m *Manager) clearLocal(ctx context.Context) bool {
	m.mu.Lock()
	had := m.token != "" || m.user != nil
	m.token = ""
	m.user = nil
	if m.initialized {
		m.phase = PhaseAnonymous
	}
	m.mu.Unlock()

	if err := m.store.Delete(ctx, storage.KeyToken); err != nil {
		m.logger.Warn("session delete persisted token", "error", err)
	}
	return had
}

func (m *Manager) notify(reason Reason) {
	m.subMu.Lock()
	subs := make([]func(Reason), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subMu.Unlock()

	m.logger.Info("session reset", "reason", string(reason))
	for _, fn := range subs {
		fn(reason)
	}
}

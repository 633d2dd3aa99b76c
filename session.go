package authcore

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cccteam/ccc/accesstypes"
	"github.com/cccteam/logger"
	"github.com/go-playground/errors/v5"
	"github.com/opsdeck/authcore/access"
	"github.com/opsdeck/authcore/api"
	"github.com/opsdeck/authcore/credstore"
	"go.opentelemetry.io/otel"
)

// Manager owns the session state machine. It is the only writer of the
// credential store; UI and tooling consume it read-only through HasRole,
// HasPermission, and User.
//
// All methods are safe for concurrent use. Exactly one refresh is ever in
// flight; concurrent callers attach to the pending refresh and share its
// outcome.
type Manager struct {
	auth        Authenticator
	store       credstore.Store
	base        http.RoundTripper
	refreshSkew time.Duration
	now         func() time.Time

	mu       sync.Mutex
	state    State
	creds    *credstore.Credentials
	inflight *refreshCall
	timer    *time.Timer
	closed   bool
}

// New creates a session manager backed by auth for network operations and
// store for persistence. The manager starts Unauthenticated; call Login or
// Restore to establish a session.
func New(auth Authenticator, store credstore.Store, options ...Option) *Manager {
	m := &Manager{
		auth:        auth,
		store:       store,
		base:        http.DefaultTransport,
		refreshSkew: defaultRefreshSkew,
		now:         time.Now,
	}
	for _, opt := range options {
		opt(m)
	}

	return m
}

// Login authenticates username/password against the backend. On success the
// session becomes Authenticated: all four credential slots are persisted
// together and the silent refresh timer is armed. On failure no partial
// state is retained.
//
// Rejected credentials surface as ErrInvalidCredentials; an inactive account
// as ErrAccountDisabled.
func (m *Manager) Login(ctx context.Context, username, password string) (*access.User, error) {
	ctx, span := otel.Tracer(name).Start(ctx, "Manager.Login()")
	defer span.End()

	m.mu.Lock()
	if m.state != StateUnauthenticated {
		m.mu.Unlock()

		return nil, errors.Wrap(ErrAlreadyAuthenticated, "Manager.Login()")
	}
	m.state = StateAuthenticating
	m.mu.Unlock()

	res, err := m.auth.Login(ctx, username, password)
	if err != nil {
		m.setStateUnauthenticated()
		if api.HasUnauthorized(err) {
			return nil, errors.Wrap(ErrInvalidCredentials, "Authenticator.Login()")
		}

		return nil, errors.Wrap(err, "Authenticator.Login()")
	}
	if !res.User.IsActive {
		m.setStateUnauthenticated()

		return nil, errors.Wrap(ErrAccountDisabled, "Authenticator.Login()")
	}

	creds := &credstore.Credentials{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    m.now().Add(res.ExpiresIn),
		User:         *res.User,
	}
	if err := m.store.Save(ctx, creds); err != nil {
		m.setStateUnauthenticated()
		if cerr := m.store.Clear(ctx); cerr != nil {
			logger.Ctx(ctx).Errorf("failed to clear credential store after save failure: %v", cerr)
		}

		return nil, errors.Wrap(err, "credstore.Store.Save()")
	}

	m.mu.Lock()
	if m.state != StateAuthenticating {
		// Logged out while the login call was in flight; the persisted
		// credentials must not resurrect the session.
		m.mu.Unlock()
		if cerr := m.store.Clear(ctx); cerr != nil {
			logger.Ctx(ctx).Errorf("failed to clear credential store: %v", cerr)
		}

		return nil, errors.New("session logged out during login")
	}
	m.creds = creds
	m.state = StateAuthenticated
	m.scheduleRefreshLocked(res.ExpiresIn)
	m.mu.Unlock()

	logger.Ctx(ctx).Infof("session established for user %s", res.User.Username)

	u := *res.User

	return &u, nil
}

// Logout destroys the session: the refresh timer is cancelled and local
// state and the credential store are cleared before the server-side token
// invalidation is attempted. The server call is best effort; its failure is
// logged, never returned. Logging out of an unauthenticated manager is a
// no-op.
func (m *Manager) Logout(ctx context.Context) error {
	ctx, span := otel.Tracer(name).Start(ctx, "Manager.Logout()")
	defer span.End()

	m.mu.Lock()
	if m.creds == nil && m.state == StateUnauthenticated {
		m.mu.Unlock()

		return nil
	}
	var refreshToken string
	if m.creds != nil {
		refreshToken = m.creds.RefreshToken
	}
	m.stopTimerLocked()
	m.creds = nil
	m.state = StateUnauthenticated
	m.mu.Unlock()

	if err := m.store.Clear(ctx); err != nil {
		return errors.Wrap(err, "credstore.Store.Clear()")
	}

	if refreshToken != "" {
		if err := m.auth.Logout(ctx, refreshToken); err != nil {
			logger.Ctx(ctx).Errorf("server-side refresh token invalidation failed: %v", err)
		}
	}

	logger.Ctx(ctx).Infof("session destroyed")

	return nil
}

// Restore re-establishes a session from persisted credentials at process
// start. The persisted expiry is not trusted blindly: the user record is
// verified against the backend, falling back to a refresh before giving up.
// It returns (nil, nil) when there is nothing to restore or the persisted
// session is no longer valid; in that case the store is left cleared.
func (m *Manager) Restore(ctx context.Context) (*access.User, error) {
	ctx, span := otel.Tracer(name).Start(ctx, "Manager.Restore()")
	defer span.End()

	creds, err := m.store.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "credstore.Store.Load()")
	}
	if creds == nil {
		return nil, nil
	}

	m.mu.Lock()
	if m.state != StateUnauthenticated {
		m.mu.Unlock()

		return nil, errors.Wrap(ErrAlreadyAuthenticated, "Manager.Restore()")
	}
	m.creds = creds
	m.state = StateAuthenticated
	m.mu.Unlock()

	user, err := m.auth.CurrentUser(ctx, creds.AccessToken)
	if err != nil {
		logger.Ctx(ctx).Infof("persisted session failed verification, attempting refresh: %v", err)

		token, rerr := m.refresh(ctx)
		if rerr != nil {
			// refresh already cleared all state
			return nil, nil
		}
		user, err = m.auth.CurrentUser(ctx, token)
		if err != nil {
			logger.Ctx(ctx).Errorf("session verification failed after refresh: %v", err)
			m.clear(ctx)

			return nil, nil
		}
	}
	if !user.IsActive {
		logger.Ctx(ctx).Infof("persisted session belongs to a disabled account")
		m.clear(ctx)

		return nil, nil
	}

	m.mu.Lock()
	if m.creds == nil {
		m.mu.Unlock()

		return nil, nil
	}
	m.creds.User = *user
	snapshot := *m.creds
	m.scheduleRefreshLocked(snapshot.ExpiresAt.Sub(m.now()))
	m.mu.Unlock()

	if err := m.store.Save(ctx, &snapshot); err != nil {
		return nil, errors.Wrap(err, "credstore.Store.Save()")
	}

	logger.Ctx(ctx).Infof("session restored for user %s", user.Username)

	u := *user

	return &u, nil
}

// Token returns the current access token. A stale token is refreshed before
// being returned, never handed out as-is.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.creds == nil {
		m.mu.Unlock()

		return "", errors.Wrap(ErrNotAuthenticated, "Manager.Token()")
	}
	if !m.creds.Stale(m.now()) {
		token := m.creds.AccessToken
		m.mu.Unlock()

		return token, nil
	}
	m.mu.Unlock()

	token, err := m.refresh(ctx)
	if err != nil {
		return "", errors.Wrap(err, "Manager.refresh()")
	}

	return token, nil
}

// ReloadUser refetches the current user record from the backend, picking up
// role or permission changes, and persists it with the rest of the
// credentials.
func (m *Manager) ReloadUser(ctx context.Context) error {
	ctx, span := otel.Tracer(name).Start(ctx, "Manager.ReloadUser()")
	defer span.End()

	token, err := m.Token(ctx)
	if err != nil {
		return errors.Wrap(err, "Manager.Token()")
	}

	user, err := m.auth.CurrentUser(ctx, token)
	if err != nil {
		return errors.Wrap(err, "Authenticator.CurrentUser()")
	}

	m.mu.Lock()
	if m.creds == nil {
		m.mu.Unlock()

		return errors.Wrap(ErrNotAuthenticated, "Manager.ReloadUser()")
	}
	m.creds.User = *user
	snapshot := *m.creds
	m.mu.Unlock()

	if err := m.store.Save(ctx, &snapshot); err != nil {
		return errors.Wrap(err, "credstore.Store.Save()")
	}

	return nil
}

// User returns a copy of the authenticated user record, or nil when no
// session exists.
func (m *Manager) User() *access.User {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.creds == nil {
		return nil
	}
	u := m.creds.User

	return &u
}

// State returns the session manager's current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// HasRole reports whether the current user's role is at or above
// requiredRole. Unauthenticated managers report false.
func (m *Manager) HasRole(requiredRole accesstypes.Role) bool {
	return access.HasRole(m.User(), requiredRole)
}

// HasPermission reports whether the current user's effective permission set
// grants capability. Unauthenticated managers report false.
func (m *Manager) HasPermission(capability accesstypes.Permission) bool {
	return access.HasPermission(m.User(), capability)
}

// HTTPClient returns an http.Client whose requests carry the session's
// bearer token and heal authorization failures via the interceptor.
func (m *Manager) HTTPClient() *http.Client {
	return &http.Client{Transport: NewTransport(m, m.base)}
}

// Close cancels the refresh timer. It does not log out; use Logout to
// destroy the session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopTimerLocked()
	m.closed = true
}

// clear performs a full local logout: timer cancelled, in-memory state and
// credential store emptied.
func (m *Manager) clear(ctx context.Context) {
	m.mu.Lock()
	m.stopTimerLocked()
	m.creds = nil
	m.state = StateUnauthenticated
	m.mu.Unlock()

	if err := m.store.Clear(ctx); err != nil {
		logger.Ctx(ctx).Errorf("failed to clear credential store: %v", err)
	}
}

func (m *Manager) setStateUnauthenticated() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = StateUnauthenticated
}

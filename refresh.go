package authcore

import (
	"context"
	"time"

	"github.com/cccteam/logger"
	"github.com/go-playground/errors/v5"
	"go.opentelemetry.io/otel"
)

// refreshCall is the shared outcome of one in-flight refresh. Concurrent
// callers attach to it instead of starting a second refresh; waiters counts
// the callers sharing the outcome. waiters is guarded by Manager.mu.
type refreshCall struct {
	done    chan struct{}
	waiters int
	token   string
	err     error
}

// refresh mints a new access token, guaranteeing at most one backend refresh
// call is in flight at any time. The in-flight guard is taken under the
// mutex before the network call begins, so a caller that loses the race
// attaches to the pending call and receives its token or error. The guard is
// released by a deferred publish on every exit, including a panic or runtime
// Goexit mid-call, so one dead refresh can not wedge the ones that follow.
//
// A failed refresh is unrecoverable: all credential state is cleared and the
// user must authenticate again.
func (m *Manager) refresh(ctx context.Context) (string, error) {
	ctx, span := otel.Tracer(name).Start(ctx, "Manager.refresh()")
	defer span.End()

	m.mu.Lock()
	if c := m.inflight; c != nil {
		c.waiters++
		m.mu.Unlock()
		select {
		case <-c.done:
			return c.token, c.err
		case <-ctx.Done():
			return "", errors.Wrap(ctx.Err(), "context canceled awaiting refresh")
		}
	}
	if m.creds == nil || m.creds.RefreshToken == "" {
		m.mu.Unlock()

		return "", errors.Wrap(ErrNotAuthenticated, "Manager.refresh()")
	}
	c := &refreshCall{done: make(chan struct{})}
	m.inflight = c
	refreshToken := m.creds.RefreshToken
	m.state = StateRefreshing
	m.mu.Unlock()

	token := ""
	var err error = errors.New("token refresh aborted")
	defer func() { m.finishRefresh(c, token, err) }()

	token, err = m.runRefresh(ctx, refreshToken)
	if err != nil {
		return "", err
	}

	return token, nil
}

// runRefresh performs the backend call and, on success, persists and commits
// the rotated token. The caller owns the in-flight guard.
func (m *Manager) runRefresh(ctx context.Context, refreshToken string) (string, error) {
	res, err := m.auth.Refresh(ctx, refreshToken)
	if err != nil {
		logger.Ctx(ctx).Errorf("token refresh failed, destroying session: %v", err)
		m.clear(ctx)

		return "", errors.Wrap(err, "Authenticator.Refresh()")
	}

	m.mu.Lock()
	if m.creds == nil {
		// Logged out while the refresh was in flight; drop the new token.
		m.mu.Unlock()

		return "", errors.Wrap(ErrNotAuthenticated, "Manager.refresh()")
	}
	snapshot := *m.creds
	m.mu.Unlock()

	snapshot.AccessToken = res.AccessToken
	snapshot.ExpiresAt = m.now().Add(res.ExpiresIn)

	// Persist all four slots before the new token becomes visible to any
	// reader.
	if err := m.store.Save(ctx, &snapshot); err != nil {
		logger.Ctx(ctx).Errorf("failed to persist refreshed credentials, destroying session: %v", err)
		m.clear(ctx)

		return "", errors.Wrap(err, "credstore.Store.Save()")
	}

	m.mu.Lock()
	if m.creds == nil {
		// Logout won the race after the save; re-clear the store.
		m.mu.Unlock()
		if cerr := m.store.Clear(ctx); cerr != nil {
			logger.Ctx(ctx).Errorf("failed to clear credential store: %v", cerr)
		}

		return "", errors.Wrap(ErrNotAuthenticated, "Manager.refresh()")
	}
	m.creds = &snapshot
	m.state = StateAuthenticated
	m.scheduleRefreshLocked(res.ExpiresIn)
	m.mu.Unlock()

	return res.AccessToken, nil
}

// finishRefresh publishes the outcome to attached callers and releases the
// in-flight guard.
func (m *Manager) finishRefresh(c *refreshCall, token string, err error) {
	c.token = token
	c.err = err

	m.mu.Lock()
	if m.inflight == c {
		m.inflight = nil
	}
	m.mu.Unlock()

	close(c.done)
}

// scheduleRefreshLocked arms the silent refresh timer to fire refreshSkew
// before the access token expires, replacing any previously armed timer.
// A remaining lifetime within the skew triggers an immediate refresh.
// Callers must hold m.mu.
func (m *Manager) scheduleRefreshLocked(expiresIn time.Duration) {
	m.stopTimerLocked()
	if m.closed {
		return
	}
	m.timer = time.AfterFunc(refreshDelay(expiresIn, m.refreshSkew), m.onRefreshTimer)
}

// stopTimerLocked cancels the refresh timer. Stopping a fired or absent
// timer is a no-op. Callers must hold m.mu.
func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) onRefreshTimer() {
	ctx := context.Background()
	if _, err := m.refresh(ctx); err != nil {
		logger.Ctx(ctx).Errorf("scheduled token refresh failed: %v", err)
	}
}

// refreshDelay computes how long to wait before refreshing a token that
// expires in expiresIn: skew before expiry, never after, and immediately
// when the remaining lifetime is already within the skew.
func refreshDelay(expiresIn, skew time.Duration) time.Duration {
	if d := expiresIn - skew; d > 0 {
		return d
	}

	return 0
}

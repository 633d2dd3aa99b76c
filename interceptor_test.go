package authcore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/cccteam/ccc/accesstypes"
	"github.com/opsdeck/authcore/access"
	"github.com/opsdeck/authcore/api"
	"github.com/opsdeck/authcore/authtest"
	"github.com/opsdeck/authcore/credstore"
)

// newLiveSession logs a user into a fresh fake backend and returns the
// manager wired to it.
func newLiveSession(t *testing.T, rec authtest.UserRecord) (*authtest.Server, *Manager) {
	t.Helper()

	srv := authtest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddUser(rec)

	client, err := api.NewClient(srv.URL())
	if err != nil {
		t.Fatalf("api.NewClient() = %v", err)
	}

	m := New(client, credstore.NewMemory())
	t.Cleanup(m.Close)

	if _, err := m.Login(context.Background(), rec.Username, rec.Password); err != nil {
		t.Fatalf("Login() = %v", err)
	}

	return srv, m
}

// forceStale backdates the in-memory token expiry so the next Token call
// refreshes.
func forceStale(m *Manager) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.creds.ExpiresAt = time.Now().Add(-time.Second)
}

func TestTransportHealsRevokedToken(t *testing.T) {
	t.Parallel()

	srv, m := newLiveSession(t, authtest.UserRecord{
		Username: "alice", Password: "password1", Role: access.RoleDeveloper, IsActive: true,
	})

	// Server-side revocation: the manager still believes its token is
	// fresh, so the first attempt goes out with the dead token and 401s.
	srv.InvalidateAccessTokens()

	resp, err := m.HTTPClient().Get(srv.URL() + "/auth/me")
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Get() status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := srv.RefreshCalls(); got != 1 {
		t.Errorf("RefreshCalls() = %d, want 1", got)
	}
	if got := m.State(); got != StateAuthenticated {
		t.Errorf("State() = %v, want %v", got, StateAuthenticated)
	}
}

func TestTransportReplaysRequestBody(t *testing.T) {
	t.Parallel()

	srv, m := newLiveSession(t, authtest.UserRecord{
		Username: "root", Password: "password1", Role: access.RoleAdmin, IsActive: true,
	})
	target := srv.AddUser(authtest.UserRecord{
		Username: "bob", Password: "password2", Role: access.RoleViewer, IsActive: true,
	})

	srv.InvalidateAccessTokens()

	// The PUT body must survive the 401 and be replayed on the retry.
	body := []byte(`{"use_custom_permissions":true,"permissions":["k8s.view"]}`)
	req, err := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/users/%s/permissions", srv.URL(), target.ID), bytes.NewReader(body))
	if err != nil {
		t.Fatalf("http.NewRequest() = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.HTTPClient().Do(req)
	if err != nil {
		t.Fatalf("Do() = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Do() status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := srv.RefreshCalls(); got != 1 {
		t.Errorf("RefreshCalls() = %d, want 1", got)
	}

	client, err := api.NewClient(srv.URL())
	if err != nil {
		t.Fatalf("api.NewClient() = %v", err)
	}
	token, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() = %v", err)
	}
	perms, err := client.UserPermissions(context.Background(), token, target.ID)
	if err != nil {
		t.Fatalf("UserPermissions() = %v", err)
	}
	if !perms.UseCustomPermissions || len(perms.Permissions) != 1 || perms.Permissions[0] != accesstypes.Permission("k8s.view") {
		t.Errorf("UserPermissions() = %+v, want custom [k8s.view]", perms)
	}
}

func TestTransportConcurrentRequestsShareOneRefresh(t *testing.T) {
	t.Parallel()

	const callers = 8

	srv, m := newLiveSession(t, authtest.UserRecord{
		Username: "alice", Password: "password1", Role: access.RoleDeveloper, IsActive: true,
	})

	// Every request sees a stale token up front and must coalesce on a
	// single refresh instead of stampeding the backend.
	forceStale(m)

	client := m.HTTPClient()
	statuses := make([]int, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Get(srv.URL() + "/auth/me")
			if err != nil {
				errs[i] = err

				return
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, resp.Body)
			statuses[i] = resp.StatusCode
		}()
	}
	wg.Wait()

	for i := range callers {
		if errs[i] != nil {
			t.Fatalf("Get() caller %d = %v", i, errs[i])
		}
		if statuses[i] != http.StatusOK {
			t.Errorf("Get() caller %d status = %d, want %d", i, statuses[i], http.StatusOK)
		}
	}
	if got := srv.RefreshCalls(); got != 1 {
		t.Errorf("RefreshCalls() = %d, want 1", got)
	}
}

func TestTransportRefreshFailurePropagatesOriginalResponse(t *testing.T) {
	t.Parallel()

	srv, m := newLiveSession(t, authtest.UserRecord{
		Username: "alice", Password: "password1", Role: access.RoleDeveloper, IsActive: true,
	})

	srv.InvalidateAccessTokens()
	srv.RevokeRefreshTokens()

	resp, err := m.HTTPClient().Get(srv.URL() + "/auth/me")
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	defer resp.Body.Close()

	// The refresh failed, so the caller gets the original authorization
	// failure and the session is gone.
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Get() status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	if got := m.State(); got != StateUnauthenticated {
		t.Errorf("State() = %v, want %v", got, StateUnauthenticated)
	}
}

func TestTransportWithoutSession(t *testing.T) {
	t.Parallel()

	srv := authtest.NewServer()
	t.Cleanup(srv.Close)

	client, err := api.NewClient(srv.URL())
	if err != nil {
		t.Fatalf("api.NewClient() = %v", err)
	}
	m := New(client, credstore.NewMemory())
	t.Cleanup(m.Close)

	// No session: the request goes out bare and the backend's 401 comes
	// back untouched, with no refresh attempted.
	resp, err := m.HTTPClient().Get(srv.URL() + "/auth/me")
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Get() status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	if got := srv.RefreshCalls(); got != 0 {
		t.Errorf("RefreshCalls() = %d, want 0", got)
	}
}

package authcore

import (
	"context"

	"golang.org/x/oauth2"
)

var _ oauth2.TokenSource = (*tokenSource)(nil)

// TokenSource adapts the managed session to oauth2.TokenSource so
// oauth2-aware clients (Kubernetes clients, gRPC per-RPC credentials) can
// ride it. Tokens returned are always fresh; a stale token is refreshed
// first.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, manager: m}
}

type tokenSource struct {
	ctx     context.Context
	manager *Manager
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	token, err := ts.manager.Token(ts.ctx)
	if err != nil {
		return nil, err
	}

	ts.manager.mu.Lock()
	defer ts.manager.mu.Unlock()

	t := &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
	if ts.manager.creds != nil {
		t.Expiry = ts.manager.creds.ExpiresAt
	}

	return t, nil
}

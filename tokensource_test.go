package authcore

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/errors/v5"
	"github.com/opsdeck/authcore/mock/mock_authcore"
	"github.com/opsdeck/authcore/mock/mock_credstore"
	"go.uber.org/mock/gomock"
)

func TestManagerTokenSource(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	m := New(mock_authcore.NewMockAuthenticator(ctrl), mock_credstore.NewMockStore(ctrl))
	defer m.Close()

	ts := m.TokenSource(context.Background())

	if _, err := ts.Token(); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Token() = %v, want %v", err, ErrNotAuthenticated)
	}

	creds := testCredentials(time.Hour)
	seedSession(m, creds)

	token, err := ts.Token()
	if err != nil {
		t.Fatalf("Token() = %v", err)
	}
	if token.AccessToken != "access-1" {
		t.Errorf("Token() access token = %q, want %q", token.AccessToken, "access-1")
	}
	if token.TokenType != "Bearer" {
		t.Errorf("Token() type = %q, want %q", token.TokenType, "Bearer")
	}
	if !token.Expiry.Equal(creds.ExpiresAt) {
		t.Errorf("Token() expiry = %v, want %v", token.Expiry, creds.ExpiresAt)
	}
}

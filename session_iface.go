package authcore

import (
	"context"

	"github.com/opsdeck/authcore/access"
	"github.com/opsdeck/authcore/api"
)

var _ Authenticator = (*api.Client)(nil)

// Authenticator defines the backend operations the session manager depends
// on. api.Client is the production implementation.
type Authenticator interface {
	// Login exchanges a username and password for a credential set.
	Login(ctx context.Context, username, password string) (*api.LoginResponse, error)
	// Refresh mints a new access token from refreshToken.
	Refresh(ctx context.Context, refreshToken string) (*api.RefreshResponse, error)
	// CurrentUser fetches the user record the access token belongs to.
	CurrentUser(ctx context.Context, accessToken string) (*access.User, error)
	// Logout invalidates refreshToken on the server side.
	Logout(ctx context.Context, refreshToken string) error
}

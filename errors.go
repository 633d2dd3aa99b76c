package authcore

import "errors"

var (
	// ErrNotAuthenticated is returned when an operation requires a session
	// and none exists.
	ErrNotAuthenticated = errors.New("no authenticated session")

	// ErrInvalidCredentials is returned by Login when the backend rejects
	// the username or password.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrAccountDisabled is returned by Login when the credentials are valid
	// but the account is inactive.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrAlreadyAuthenticated is returned by Login and Restore when a
	// session already exists or is being established.
	ErrAlreadyAuthenticated = errors.New("session already established")
)

// Package authcore implements the session and authorization core for
// clients of the platform API: credential lifecycle (login, silent refresh,
// logout, restore after restart) and authorization evaluation for the
// authenticated user.
//
// A Manager owns the session state machine. The Transport wraps outbound
// API calls, attaching the bearer token and transparently healing expired
// credentials with a single refresh-and-retry. Role and permission queries
// are answered from the access package against the current user record.
package authcore

const name = "github.com/opsdeck/authcore"

// State is the session manager's lifecycle state.
type State int

const (
	// StateUnauthenticated means no session exists.
	StateUnauthenticated State = iota
	// StateAuthenticating means a login call is in flight.
	StateAuthenticating
	// StateAuthenticated means a session exists with a usable access token.
	StateAuthenticated
	// StateRefreshing means a refresh call is in flight.
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "Unauthenticated"
	case StateAuthenticating:
		return "Authenticating"
	case StateAuthenticated:
		return "Authenticated"
	case StateRefreshing:
		return "Refreshing"
	default:
		return "Unknown"
	}
}

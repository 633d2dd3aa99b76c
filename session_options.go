package authcore

import (
	"net/http"
	"time"
)

// defaultRefreshSkew is how long before access-token expiry the silent
// refresh runs.
const defaultRefreshSkew = time.Minute

// Option defines a function signature for setting Manager options.
type Option func(*Manager)

// WithRefreshSkew sets how long before expiry the refresh timer fires.
// A token whose remaining lifetime is already within the skew is refreshed
// immediately. (default: 1m)
func WithRefreshSkew(d time.Duration) Option {
	return func(m *Manager) {
		m.refreshSkew = d
	}
}

// WithBaseTransport sets the http.RoundTripper the interceptor submits
// requests through. (default: http.DefaultTransport)
func WithBaseTransport(base http.RoundTripper) Option {
	return func(m *Manager) {
		m.base = base
	}
}

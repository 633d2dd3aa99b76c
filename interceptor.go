package authcore

import (
	"io"
	"net/http"

	"github.com/cccteam/logger"
)

var _ http.RoundTripper = (*Transport)(nil)

// Transport is the request interceptor: an http.RoundTripper that attaches
// the session's bearer token to every outbound call and, on an authorization
// failure, refreshes the token once and resubmits the original request.
//
// Exactly one retry is attempted per originating request, no matter how many
// refreshes happen concurrently elsewhere. When the refresh itself fails the
// original 401 response is returned unmasked; by then the manager has
// already destroyed the session.
type Transport struct {
	manager *Manager
	base    http.RoundTripper
}

// NewTransport creates an interceptor for m submitting requests through
// base. A nil base uses http.DefaultTransport.
func NewTransport(m *Manager, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}

	return &Transport{manager: m, base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	// A stale token is refreshed before use. If no session exists (or the
	// session could not be healed) the request goes out bare and the
	// backend's authorization failure reaches the caller untouched.
	token, err := t.manager.Token(ctx)
	if err != nil {
		token = ""
	}

	out := req.Clone(ctx)
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.base.RoundTrip(out)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if token == "" {
		return resp, nil
	}
	if req.Body != nil && req.GetBody == nil {
		// The body was consumed by the first attempt and can not be
		// replayed.
		return resp, nil
	}

	newToken, rerr := t.manager.refresh(ctx)
	if rerr != nil {
		// Refresh failed; the manager has logged out. Propagate the
		// original authorization failure, not ours.
		return resp, nil
	}

	retry := req.Clone(ctx)
	if req.GetBody != nil {
		body, berr := req.GetBody()
		if berr != nil {
			logger.Ctx(ctx).Errorf("failed to rebuild request body for retry: %v", berr)

			return resp, nil
		}
		retry.Body = body
	}
	retry.Header.Set("Authorization", "Bearer "+newToken)

	// Drain the 401 so the connection can be reused, then resubmit exactly
	// once. A second authorization failure is returned as-is.
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return t.base.RoundTrip(retry)
}

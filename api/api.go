// Package api implements the wire client for the platform's authentication
// and user-management endpoints.
//
// The client is stateless: access and refresh tokens are passed in by the
// caller (the session manager owns them), so the same client can be shared
// across sessions.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/errors/v5"
	"github.com/opsdeck/authcore/access"
	"go.opentelemetry.io/otel"
)

const name = "github.com/opsdeck/authcore/api"

// ClientOption defines a function signature for setting client options.
type ClientOption func(*Client)

// WithHTTPClient sets the http.Client used for all requests.
// (default: http.DefaultClient)
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client talks to the platform API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a platform API client for the service at baseURL.
func NewClient(baseURL string, options ...ClientOption) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, errors.Wrap(err, "url.Parse()")
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range options {
		opt(c)
	}

	return c, nil
}

// Login exchanges a username and password for a credential set.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	ctx, span := otel.Tracer(name).Start(ctx, "Client.Login()")
	defer span.End()

	res := &loginResponse{}
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", &loginRequest{Username: username, Password: password}, res); err != nil {
		return nil, errors.Wrap(err, "api.Client.do()")
	}
	if res.User == nil {
		return nil, errors.New("login response missing user record")
	}

	return &LoginResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    time.Duration(res.ExpiresIn) * time.Second,
		User:         res.User.user(),
	}, nil
}

// Refresh mints a new access token from refreshToken.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	ctx, span := otel.Tracer(name).Start(ctx, "Client.Refresh()")
	defer span.End()

	res := &refreshResponse{}
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", "", &refreshRequest{RefreshToken: refreshToken}, res); err != nil {
		return nil, errors.Wrap(err, "api.Client.do()")
	}

	return &RefreshResponse{
		AccessToken: res.AccessToken,
		ExpiresIn:   time.Duration(res.ExpiresIn) * time.Second,
	}, nil
}

// CurrentUser fetches the user record the access token belongs to.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*access.User, error) {
	ctx, span := otel.Tracer(name).Start(ctx, "Client.CurrentUser()")
	defer span.End()

	res := &wireUser{}
	if err := c.do(ctx, http.MethodGet, "/auth/me", accessToken, nil, res); err != nil {
		return nil, errors.Wrap(err, "api.Client.do()")
	}

	return res.user(), nil
}

// Logout invalidates refreshToken on the server side.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	ctx, span := otel.Tracer(name).Start(ctx, "Client.Logout()")
	defer span.End()

	if err := c.do(ctx, http.MethodPost, "/auth/logout", "", &logoutRequest{RefreshToken: refreshToken}, nil); err != nil {
		return errors.Wrap(err, "api.Client.do()")
	}

	return nil
}

// UserPermissions fetches the stored permission configuration for userID.
func (c *Client) UserPermissions(ctx context.Context, accessToken, userID string) (*UserPermissions, error) {
	ctx, span := otel.Tracer(name).Start(ctx, "Client.UserPermissions()")
	defer span.End()

	res := &wirePermissions{}
	path := fmt.Sprintf("/users/%s/permissions", url.PathEscape(userID))
	if err := c.do(ctx, http.MethodGet, path, accessToken, nil, res); err != nil {
		return nil, errors.Wrap(err, "api.Client.do()")
	}

	return &UserPermissions{
		UseCustomPermissions: res.UseCustomPermissions,
		Permissions:          toPermissions(res.Permissions),
	}, nil
}

// SetUserPermissions replaces the stored permission configuration for userID.
func (c *Client) SetUserPermissions(ctx context.Context, accessToken, userID string, perms *UserPermissions) error {
	ctx, span := otel.Tracer(name).Start(ctx, "Client.SetUserPermissions()")
	defer span.End()

	body := &wirePermissions{
		UseCustomPermissions: perms.UseCustomPermissions,
		Permissions:          fromPermissions(perms.Permissions),
	}
	path := fmt.Sprintf("/users/%s/permissions", url.PathEscape(userID))
	if err := c.do(ctx, http.MethodPut, path, accessToken, body, nil); err != nil {
		return errors.Wrap(err, "api.Client.do()")
	}

	return nil
}

// do issues one JSON request. A non-2xx status is returned as an *Error; out
// may be nil for endpoints that respond with no body.
func (c *Client) do(ctx context.Context, method, path, accessToken string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "json.Marshal()")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "http.NewRequestWithContext()")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "http.Client.Do()")
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return errors.Wrap(newError(resp), "platform api")
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, "json.Decoder.Decode()")
		}
	}

	return nil
}

// newError extracts a message from an error response body, tolerating both
// {"message": ...} and {"error": ...} shapes.
func newError(resp *http.Response) *Error {
	apiErr := &Error{StatusCode: resp.StatusCode}

	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err == nil {
		if body.Message != "" {
			apiErr.Message = body.Message
		} else {
			apiErr.Message = body.Error
		}
	}

	return apiErr
}

// Package authtest provides an in-memory fake of the platform's
// authentication and user-management API for tests. Access tokens are real
// signed JWTs (consumed opaquely by the session core), refresh tokens are
// random and revocable, and every endpoint counts its calls so tests can
// assert properties like "exactly one refresh reached the backend".
package authtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cccteam/ccc"
	"github.com/cccteam/ccc/accesstypes"
	"github.com/cccteam/httpio"
	"github.com/cccteam/logger"
	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/opsdeck/authcore/access"
	"github.com/opsdeck/authcore/util"
)

// DefaultAccessTTL is the access-token lifetime minted by the fake backend.
const DefaultAccessTTL = time.Hour

// UserRecord is a user account known to the fake backend.
type UserRecord struct {
	ID                   string
	Username             string
	Password             string
	Role                 accesstypes.Role
	IsActive             bool
	UseCustomPermissions bool
	Permissions          []accesstypes.Permission
}

func (u *UserRecord) user() *access.User {
	return &access.User{
		ID:                    u.ID,
		Username:              u.Username,
		Role:                  u.Role,
		IsActive:              u.IsActive,
		UsesCustomPermissions: u.UseCustomPermissions,
		CustomPermissions:     u.Permissions,
	}
}

// Server is the fake platform backend.
type Server struct {
	srv        *httptest.Server
	signingKey []byte
	accessTTL  time.Duration

	mu            sync.Mutex
	usersByName   map[string]*UserRecord
	usersByID     map[string]*UserRecord
	refreshTokens map[string]string // refresh token -> username
	generation    int               // access tokens from older generations are rejected
	counts        map[string]int
}

// ServerOption defines a function signature for setting server options.
type ServerOption func(*Server)

// WithAccessTTL sets the minted access-token lifetime.
// (default: DefaultAccessTTL)
func WithAccessTTL(d time.Duration) ServerOption {
	return func(s *Server) {
		s.accessTTL = d
	}
}

// NewServer starts the fake backend. Callers own shutdown via Close.
func NewServer(options ...ServerOption) *Server {
	s := &Server{
		signingKey:    []byte("authtest-signing-key"),
		accessTTL:     DefaultAccessTTL,
		usersByName:   make(map[string]*UserRecord),
		usersByID:     make(map[string]*UserRecord),
		refreshTokens: make(map[string]string),
		counts:        make(map[string]int),
	}
	for _, opt := range options {
		opt(s)
	}

	r := chi.NewRouter()
	r.Post("/auth/login", s.handleLogin())
	r.Post("/auth/refresh", s.handleRefresh())
	r.Get("/auth/me", s.handleCurrentUser())
	r.Post("/auth/logout", s.handleLogout())
	r.Get("/users/{userID}/permissions", s.handleGetPermissions())
	r.Put("/users/{userID}/permissions", s.handleSetPermissions())

	s.srv = httptest.NewServer(r)

	return s
}

// URL returns the backend's base URL.
func (s *Server) URL() string {
	return s.srv.URL
}

// Close shuts the backend down.
func (s *Server) Close() {
	s.srv.Close()
}

// AddUser registers a user account. A missing ID is filled in.
func (s *Server) AddUser(rec UserRecord) *UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		id, err := ccc.NewUUID()
		if err != nil {
			panic(err)
		}
		rec.ID = id.String()
	}
	s.usersByName[rec.Username] = &rec
	s.usersByID[rec.ID] = &rec

	return &rec
}

// InvalidateAccessTokens rejects every access token issued so far, as a
// server-side revocation would. Refresh tokens stay valid.
func (s *Server) InvalidateAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
}

// RevokeRefreshTokens invalidates all outstanding refresh tokens.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshTokens = make(map[string]string)
}

// RefreshCalls returns how many refresh requests reached the backend.
func (s *Server) RefreshCalls() int {
	return s.Calls("/auth/refresh")
}

// Calls returns how many requests reached the given path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.counts[path]
}

func (s *Server) count(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts[r.URL.Path]++
}

func (s *Server) handleLogin() http.HandlerFunc {
	type request struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	return httpio.Log(func(w http.ResponseWriter, r *http.Request) error {
		s.count(r)

		req := &request{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			return httpio.NewEncoder(w).ClientMessage(r.Context(), httpio.NewBadRequestMessageWithError(err, "invalid request body"))
		}

		s.mu.Lock()
		rec, ok := s.usersByName[req.Username]
		s.mu.Unlock()
		if !ok || rec.Password != req.Password {
			return httpio.NewEncoder(w).ClientMessage(r.Context(), httpio.NewUnauthorizedMessage("invalid username or password"))
		}

		accessToken, err := s.mintAccessToken(rec.Username)
		if err != nil {
			return httpio.NewEncoder(w).ClientMessage(r.Context(), err)
		}
		refreshToken, err := s.mintRefreshToken(rec.Username)
		if err != nil {
			return httpio.NewEncoder(w).ClientMessage(r.Context(), err)
		}

		return httpio.NewEncoder(w).Ok(map[string]any{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_in":    int64(s.accessTTL / time.Second),
			"user":          wireUser(rec),
		})
	})
}

func (s *Server) handleRefresh() http.HandlerFunc {
	type request struct {
		RefreshToken string `json:"refresh_token"`
	}

	return httpio.Log(func(w http.ResponseWriter, r *http.Request) error {
		s.count(r)

		req := &request{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			return httpio.NewEncoder(w).ClientMessage(r.Context(), httpio.NewBadRequestMessageWithError(err, "invalid request body"))
		}

		s.mu.Lock()
		username, ok := s.refreshTokens[req.RefreshToken]
		s.mu.Unlock()
		if !ok {
			return httpio.NewEncoder(w).ClientMessage(r.Context(), httpio.NewUnauthorizedMessage("invalid refresh token"))
		}

		accessToken, err := s.mintAccessToken(username)
		if err != nil {
			return httpio.NewEncoder(w).ClientMessage(r.Context(), err)
		}

		return httpio.NewEncoder(w).Ok(map[string]any{
			"access_token": accessToken,
			"expires_in":   int64(s.accessTTL / time.Second),
		})
	})
}

func (s *Server) handleCurrentUser() http.HandlerFunc {
	return httpio.Log(func(w http.ResponseWriter, r *http.Request) error {
		s.count(r)

		rec, err := s.authenticate(r)
		if err != nil {
			return httpio.NewEncoder(w).ClientMessage(r.Context(), err)
		}

		return httpio.NewEncoder(w).Ok(wireUser(rec))
	})
}

func (s *Server) handleLogout() http.HandlerFunc {
	type request struct {
		RefreshToken string `json:"refresh_token"`
	}

	return httpio.Log(func(w http.ResponseWriter, r *http.Request) error {
		s.count(r)

		req := &request{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			return httpio.NewEncoder(w).ClientMessage(r.Context(), httpio.NewBadRequestMessageWithError(err, "invalid request body"))
		}

		s.mu.Lock()
		delete(s.refreshTokens, req.RefreshToken)
		s.mu.Unlock()

		return httpio.NewEncoder(w).Ok(nil)
	})
}

func (s *Server) handleGetPermissions() http.HandlerFunc {
	return httpio.Log(func(w http.ResponseWriter, r *http.Request) error {
		s.count(r)

		caller, err := s.authenticate(r)
		if err != nil {
			return httpio.NewEncoder(w).ClientMessage(r.Context(), err)
		}
		if !access.HasPermission(caller.user(), "admin.users") {
			return httpio.NewEncoder(w).ClientMessage(r.Context(), httpio.NewForbiddenMessage("insufficient permissions"))
		}

		s.mu.Lock()
		rec, ok := s.usersByID[chi.URLParam(r, "userID")]
		s.mu.Unlock()
		if !ok {
			return httpio.NewEncoder(w).ClientMessage(r.Context(), httpio.NewNotFoundMessage("user not found"))
		}

		return httpio.NewEncoder(w).Ok(map[string]any{
			"use_custom_permissions": rec.UseCustomPermissions,
			"permissions":            rec.Permissions,
		})
	})
}

func (s *Server) handleSetPermissions() http.HandlerFunc {
	type request struct {
		UseCustomPermissions bool                     `json:"use_custom_permissions"`
		Permissions          []accesstypes.Permission `json:"permissions"`
	}

	return httpio.Log(func(w http.ResponseWriter, r *http.Request) error {
		s.count(r)

		caller, err := s.authenticate(r)
		if err != nil {
			return httpio.NewEncoder(w).ClientMessage(r.Context(), err)
		}
		if !access.HasPermission(caller.user(), "admin.users") {
			return httpio.NewEncoder(w).ClientMessage(r.Context(), httpio.NewForbiddenMessage("insufficient permissions"))
		}

		req := &request{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			return httpio.NewEncoder(w).ClientMessage(r.Context(), httpio.NewBadRequestMessageWithError(err, "invalid request body"))
		}

		s.mu.Lock()
		rec, ok := s.usersByID[chi.URLParam(r, "userID")]
		if ok {
			granted := util.Exclude(req.Permissions, rec.Permissions)
			revoked := util.Exclude(rec.Permissions, req.Permissions)
			logger.Req(r).Infof("user %s permissions updated: granted %v, revoked %v", rec.Username, granted, revoked)
			rec.UseCustomPermissions = req.UseCustomPermissions
			rec.Permissions = req.Permissions
		}
		s.mu.Unlock()
		if !ok {
			return httpio.NewEncoder(w).ClientMessage(r.Context(), httpio.NewNotFoundMessage("user not found"))
		}

		return httpio.NewEncoder(w).Ok(nil)
	})
}

// authenticate validates the bearer token and returns the account it was
// minted for.
func (s *Server) authenticate(r *http.Request) (*UserRecord, error) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" || raw == r.Header.Get("Authorization") {
		return nil, httpio.NewUnauthorizedMessage("missing bearer token")
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, httpio.NewUnauthorizedMessage("invalid access token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	gen, err := strconv.Atoi(claims.ID)
	if err != nil || gen < s.generation {
		return nil, httpio.NewUnauthorizedMessage("access token revoked")
	}
	rec, ok := s.usersByName[claims.Subject]
	if !ok {
		return nil, httpio.NewUnauthorizedMessage("unknown user")
	}

	return rec, nil
}

func (s *Server) mintAccessToken(username string) (string, error) {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	now := time.Now()
	claims := &jwt.RegisteredClaims{
		ID:        strconv.Itoa(gen),
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", httpio.NewInternalServerErrorMessageWithError(err, "failed to mint access token")
	}

	return token, nil
}

func (s *Server) mintRefreshToken(username string) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", httpio.NewInternalServerErrorMessageWithError(err, "failed to mint refresh token")
	}

	s.mu.Lock()
	s.refreshTokens[id.String()] = username
	s.mu.Unlock()

	return id.String(), nil
}

func wireUser(rec *UserRecord) map[string]any {
	u := map[string]any{
		"id":                     rec.ID,
		"username":               rec.Username,
		"role":                   rec.Role,
		"is_active":              rec.IsActive,
		"use_custom_permissions": rec.UseCustomPermissions,
	}
	if rec.UseCustomPermissions {
		u["custom_permissions"] = rec.Permissions
	}

	return u
}

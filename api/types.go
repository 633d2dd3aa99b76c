package api

import (
	"time"

	"github.com/cccteam/ccc/accesstypes"
	"github.com/opsdeck/authcore/access"
)

// LoginResponse is the credential set minted by a successful login.
type LoginResponse struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	User         *access.User
}

// RefreshResponse is the replacement access token minted from a refresh
// token. The refresh token itself is not reissued.
type RefreshResponse struct {
	AccessToken string
	ExpiresIn   time.Duration
}

// UserPermissions is a user's stored permission configuration.
type UserPermissions struct {
	UseCustomPermissions bool
	Permissions          []accesstypes.Permission
}

// Wire types. The platform API speaks snake_case JSON with expiries in
// whole seconds.

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	User         *wireUser `json:"user"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type wireUser struct {
	ID                   string   `json:"id"`
	Username             string   `json:"username"`
	Role                 string   `json:"role"`
	IsActive             bool     `json:"is_active"`
	UseCustomPermissions bool     `json:"use_custom_permissions"`
	CustomPermissions    []string `json:"custom_permissions,omitempty"`
}

type wirePermissions struct {
	UseCustomPermissions bool     `json:"use_custom_permissions"`
	Permissions          []string `json:"permissions"`
}

func (u *wireUser) user() *access.User {
	user := &access.User{
		ID:                    u.ID,
		Username:              u.Username,
		Role:                  accesstypes.Role(u.Role),
		IsActive:              u.IsActive,
		UsesCustomPermissions: u.UseCustomPermissions,
		CustomPermissions:     toPermissions(u.CustomPermissions),
	}

	return user
}

func toPermissions(perms []string) []accesstypes.Permission {
	if perms == nil {
		return nil
	}
	list := make([]accesstypes.Permission, 0, len(perms))
	for _, p := range perms {
		list = append(list, accesstypes.Permission(p))
	}

	return list
}

func fromPermissions(perms []accesstypes.Permission) []string {
	list := make([]string, 0, len(perms))
	for _, p := range perms {
		list = append(list, string(p))
	}

	return list
}

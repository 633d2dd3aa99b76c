// Package credstore implements persistence for the session credentials.
// There are drivers for in-memory, file, and SQLite backed storage.
//
// A credential record occupies four logical slots: access token, refresh
// token, user record, and access-token expiry. Drivers persist and clear all
// four together; a caller can never observe a partial write.
package credstore

import (
	"context"
	"time"

	"github.com/opsdeck/authcore/access"
)

const name = "github.com/opsdeck/authcore/credstore"

// Credentials is the persisted session state.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         access.User
}

// Stale reports whether the access token has passed its expiry at time now.
// A stale token must be refreshed before use, never used as-is.
func (c *Credentials) Stale(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*File)(nil)
	_ Store = (*Sqlite)(nil)
)

// Store defines an interface for credential persistence. It holds no
// business logic; validation belongs to the session manager.
type Store interface {
	// Save persists creds, replacing any previous record as a whole.
	Save(ctx context.Context, creds *Credentials) error
	// Load returns the persisted record, or (nil, nil) when the store is
	// empty. A record that fails integrity checks loads as empty.
	Load(ctx context.Context) (*Credentials, error)
	// Clear removes the record. Clearing an empty store is a no-op.
	Clear(ctx context.Context) error
}

// record is the serialized form shared by the file and SQLite drivers.
type record struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	User         access.User `json:"user"`
	ExpiresAtMs  int64       `json:"expiresAtMs"`
}

func newRecord(creds *Credentials) *record {
	return &record{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		User:         creds.User,
		ExpiresAtMs:  creds.ExpiresAt.UnixMilli(),
	}
}

func (r *record) credentials() *Credentials {
	return &Credentials{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		User:         r.User,
		ExpiresAt:    time.UnixMilli(r.ExpiresAtMs),
	}
}

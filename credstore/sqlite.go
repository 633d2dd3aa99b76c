package credstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/go-playground/errors/v5"
	_ "github.com/mattn/go-sqlite3" // sqlite3 database/sql driver
	"go.opentelemetry.io/otel"
)

// Sqlite is a credential store backed by a single-row SQLite table, for
// long-lived desktop and CLI clients that already carry a local database.
type Sqlite struct {
	db *sql.DB
}

// NewSqlite opens (creating if necessary) the credential table in the
// database at path.
func NewSqlite(ctx context.Context, path string) (*Sqlite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "sql.Open()")
	}

	query := `
		CREATE TABLE IF NOT EXISTS credentials (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			user_record TEXT NOT NULL,
			expires_at_ms INTEGER NOT NULL
		)`
	if _, err := db.ExecContext(ctx, query); err != nil {
		db.Close()

		return nil, errors.Wrap(err, "sql.DB.ExecContext()")
	}

	return &Sqlite{db: db}, nil
}

// Save writes all four credential slots in one statement.
func (s *Sqlite) Save(ctx context.Context, creds *Credentials) error {
	ctx, span := otel.Tracer(name).Start(ctx, "Sqlite.Save()")
	defer span.End()

	r := newRecord(creds)
	userRecord, err := json.Marshal(r.User)
	if err != nil {
		return errors.Wrap(err, "json.Marshal()")
	}

	query := `
		INSERT OR REPLACE INTO credentials (id, access_token, refresh_token, user_record, expires_at_ms)
		VALUES (1, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, r.AccessToken, r.RefreshToken, string(userRecord), r.ExpiresAtMs); err != nil {
		return errors.Wrap(err, "sql.DB.ExecContext()")
	}

	return nil
}

// Load returns the stored record, or (nil, nil) when the table is empty or
// the user record fails to decode.
func (s *Sqlite) Load(ctx context.Context) (*Credentials, error) {
	ctx, span := otel.Tracer(name).Start(ctx, "Sqlite.Load()")
	defer span.End()

	query := `
		SELECT access_token, refresh_token, user_record, expires_at_ms
		FROM credentials WHERE id = 1`

	r := &record{}
	var userRecord string
	if err := s.db.QueryRowContext(ctx, query).Scan(&r.AccessToken, &r.RefreshToken, &userRecord, &r.ExpiresAtMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "sql.DB.QueryRowContext()")
	}

	if err := json.Unmarshal([]byte(userRecord), &r.User); err != nil {
		return nil, nil
	}

	return r.credentials(), nil
}

// Clear deletes the credential row.
func (s *Sqlite) Clear(ctx context.Context) error {
	ctx, span := otel.Tracer(name).Start(ctx, "Sqlite.Clear()")
	defer span.End()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return errors.Wrap(err, "sql.DB.ExecContext()")
	}

	return nil
}

// Close closes the underlying database handle.
func (s *Sqlite) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "sql.DB.Close()")
	}

	return nil
}

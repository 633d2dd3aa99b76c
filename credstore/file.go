package credstore

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cccteam/logger"
	"github.com/go-playground/errors/v5"
	"github.com/gorilla/securecookie"
	"go.opentelemetry.io/otel"
)

// fileSlot is the name the record is authenticated under. Decoding with a
// different name fails, so a record can not be replayed from another store.
const fileSlot = "credentials"

// File is a credential store backed by a single file. The record is encoded
// with securecookie using an HMAC key, so a truncated or tampered file loads
// as empty rather than producing a half-written session.
type File struct {
	path  string
	codec *securecookie.SecureCookie
}

// NewFile creates a file-backed credential store at path. hashKey
// authenticates the record; it should be at least 32 bytes and stable across
// restarts.
func NewFile(path string, hashKey []byte) (*File, error) {
	if len(hashKey) == 0 {
		return nil, errors.New("credstore.NewFile: hashKey is required")
	}

	codec := securecookie.New(hashKey, nil)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(0)

	return &File{path: path, codec: codec}, nil
}

// Save encodes creds and writes the file atomically via rename, so a crash
// mid-write leaves the previous record intact.
func (f *File) Save(ctx context.Context, creds *Credentials) error {
	_, span := otel.Tracer(name).Start(ctx, "File.Save()")
	defer span.End()

	encoded, err := f.codec.Encode(fileSlot, newRecord(creds))
	if err != nil {
		return errors.Wrap(err, "securecookie.SecureCookie.Encode()")
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".credentials-*")
	if err != nil {
		return errors.Wrap(err, "os.CreateTemp()")
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()

		return errors.Wrap(err, "os.File.Chmod()")
	}
	if _, err := tmp.WriteString(encoded); err != nil {
		tmp.Close()

		return errors.Wrap(err, "os.File.WriteString()")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "os.File.Close()")
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return errors.Wrap(err, "os.Rename()")
	}

	return nil
}

// Load reads and verifies the record. A missing file is an empty store; a
// record that fails verification is treated the same and logged.
func (f *File) Load(ctx context.Context) (*Credentials, error) {
	_, span := otel.Tracer(name).Start(ctx, "File.Load()")
	defer span.End()

	encoded, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "os.ReadFile()")
	}

	r := &record{}
	if err := f.codec.Decode(fileSlot, string(encoded), r); err != nil {
		logger.Ctx(ctx).Errorf("credential file failed verification, treating store as empty: %v", err)

		return nil, nil
	}

	return r.credentials(), nil
}

// Clear removes the credential file.
func (f *File) Clear(ctx context.Context) error {
	_, span := otel.Tracer(name).Start(ctx, "File.Clear()")
	defer span.End()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "os.Remove()")
	}

	return nil
}

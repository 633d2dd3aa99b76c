package credstore

import (
	"context"
	"sync"
)

// Memory is an in-process credential store. It does not survive a process
// restart; it exists for tests and short-lived tooling.
type Memory struct {
	mu    sync.Mutex
	creds *Credentials
}

// NewMemory creates a new in-memory credential store.
func NewMemory() *Memory {
	return &Memory{}
}

// Save stores a copy of creds.
func (m *Memory) Save(_ context.Context, creds *Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *creds
	m.creds = &c

	return nil
}

// Load returns a copy of the stored credentials, or (nil, nil) when empty.
func (m *Memory) Load(_ context.Context) (*Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.creds == nil {
		return nil, nil
	}
	c := *m.creds

	return &c, nil
}

// Clear removes the stored credentials.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.creds = nil

	return nil
}

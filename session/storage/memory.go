package storage

import (
	"context"
	"sync"

	"github.com/gravitational/trace"
)

// MemoryStore is a Store that does not outlive the process.
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) GetRefreshToken(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return "", trace.NotFound("no refresh token stored")
	}
	return m.token, nil
}

func (m *MemoryStore) PutRefreshToken(_ context.Context, token string) error {
	if token == "" {
		return trace.BadParameter("empty refresh token")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryStore) DeleteRefreshToken(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}

// Package auth holds the bearer token between requests and reacts to
// authentication failures.
package auth

import (
	"context"
	"errors"
	"sync"
)

// ErrEmptyToken is returned when storing an empty token.
var ErrEmptyToken = errors.New("empty token")

// TokenStore persists the access token issued at sign-in.
// It satisfies client.TokenGetter.
type TokenStore interface {
	// Get returns the token and whether one is present.
	Get(ctx context.Context) (string, bool, error)

	// Set replaces the stored token.
	Set(ctx context.Context, token string) error

	// Clear removes the stored token. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// MemoryStore keeps the token in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get implements TokenStore.
func (s *MemoryStore) Get(_ context.Context) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != "", nil
}

// Set implements TokenStore.
func (s *MemoryStore) Set(_ context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Clear implements TokenStore.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return nil
}

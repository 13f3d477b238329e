package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"medid/internal/token/models"
	id "medid/pkg/domain"
	"medid/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this pattern:
// - Return sentinel.ErrNotFound (wrapped) when the token does not exist
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures

// InMemoryStore keeps access tokens in memory. Tokens are stored and returned
// by value so a reader never observes a partially mutated token: every
// mutation replaces the whole record under the write lock.
type InMemoryStore struct {
	mu     sync.RWMutex
	tokens map[id.TokenID]models.AccessToken
}

// NewInMemoryStore constructs an empty in-memory token store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{tokens: make(map[id.TokenID]models.AccessToken)}
}

// Save inserts a token record.
func (s *InMemoryStore) Save(_ context.Context, token models.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.ID] = token.Clone()
	return nil
}

// Find returns a copy of the token.
func (s *InMemoryStore) Find(_ context.Context, tokenID id.TokenID) (models.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[tokenID]
	if !ok {
		return models.AccessToken{}, fmt.Errorf("access token not found: %w", sentinel.ErrNotFound)
	}
	return token.Clone(), nil
}

// MarkRevoked sets the revoked flag. Unknown tokens are a no-op so revocation
// leaks nothing about token existence.
func (s *InMemoryStore) MarkRevoked(_ context.Context, tokenID id.TokenID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[tokenID]
	if !ok {
		return nil
	}
	token.Revoked = true
	s.tokens[tokenID] = token
	return nil
}

// DeleteExpired evicts every token whose expiry lies strictly before now.
// The time is injected for testability. Eviction is memory hygiene only;
// validation independently re-checks expiry.
func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key, token := range s.tokens {
		if now.After(token.ExpiresAt) {
			delete(s.tokens, key)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of stored tokens (diagnostics and tests).
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

package mock

import (
	"context"
	"fmt"
	"sync"

	"git.srvlab.io/whiskey/mountsup/pkg/credentials"
)

// MockStore is an in-memory credentials.Store
type MockStore struct {
	mu       sync.Mutex
	creds    map[string]credentials.Credentials
	resolves int
}

// NewMockStore creates an empty store
func NewMockStore() *MockStore {
	return &MockStore{creds: make(map[string]credentials.Credentials)}
}

// Name implements credentials.Store
func (s *MockStore) Name() string {
	return "mock"
}

// Resolve implements credentials.Store
func (s *MockStore) Resolve(ctx context.Context, ref string) (credentials.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolves++
	c, ok := s.creds[ref]
	if !ok {
		return credentials.Credentials{}, fmt.Errorf("%w: %s", credentials.ErrNotFound, ref)
	}
	return c, nil
}

// Set stores credentials under ref
func (s *MockStore) Set(ref string, c credentials.Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[ref] = c
}

// Delete removes ref
func (s *MockStore) Delete(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, ref)
}

// Resolves returns how many lookups ran
func (s *MockStore) Resolves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolves
}

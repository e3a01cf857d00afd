package credstore

import (
	"sync"

	"github.com/teemow/gmailrelay/internal/google"
)

// MemoryStore keeps the record in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	record Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := s.record
	r.Tokens = copyTokens(r.Tokens)
	return r, nil
}

func (s *MemoryStore) SaveCredentials(creds google.ClientCredentials, redirectURI string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record.ClientID = creds.ClientID
	s.record.ClientSecret = creds.ClientSecret
	s.record.RedirectURI = redirectURI
	return nil
}

func (s *MemoryStore) SaveTokens(tokens *google.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record.Tokens = copyTokens(tokens)
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record = Record{}
	return nil
}

func copyTokens(t *google.TokenPair) *google.TokenPair {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

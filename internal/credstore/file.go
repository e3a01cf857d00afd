package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/teemow/gmailrelay/internal/google"
)

// FileName is the name of the credential file inside the cache directory.
const FileName = "credentials.json"

// DefaultPath returns $XDG_CACHE_HOME/gmailrelay/credentials.json, or the
// platform's equivalent cache directory.
func DefaultPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate cache directory: %w", err)
	}
	return filepath.Join(dir, "gmailrelay", FileName), nil
}

// FileStore keeps the record as JSON in a single file with mode 0600.
// Writes go to a temp file that is renamed into place, so a reader never
// sees a partially written record.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file is created on the
// first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load()
}

func (s *FileStore) SaveCredentials(creds google.ClientCredentials, redirectURI string) error {
	return s.update(func(r *Record) {
		r.ClientID = creds.ClientID
		r.ClientSecret = creds.ClientSecret
		r.RedirectURI = redirectURI
	})
}

func (s *FileStore) SaveTokens(tokens *google.TokenPair) error {
	return s.update(func(r *Record) {
		r.Tokens = tokens
	})
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credential file: %w", err)
	}
	return nil
}

func (s *FileStore) load() (Record, error) {
	var r Record

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return r, fmt.Errorf("failed to read credential file: %w", err)
	}

	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("failed to parse credential file %s: %w", s.path, err)
	}
	return r, nil
}

func (s *FileStore) update(fn func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.load()
	if err != nil {
		return err
	}
	fn(&r)
	return s.write(r)
}

func (s *FileStore) write(r Record) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	tmp, err := os.CreateTemp(dir, FileName+".tmp.")
	if err != nil {
		return fmt.Errorf("failed to create temp credential file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanupTmp := true
	defer func() {
		if cleanupTmp {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(0600); err != nil {
		return fmt.Errorf("failed to chmod temp credential file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credential file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}

	cleanupTmp = false
	return nil
}

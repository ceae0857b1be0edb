// Package tokenstore persists the admin session bearer token on disk.
//
// The file holds a single JSON key; its absence means "logged out".
package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultFile is the token file name used when no path is configured.
const DefaultFile = "token.json"

type persisted struct {
	Token string `json:"token"`
}

// Store is the single source of truth for "is a session active".
type Store struct {
	path  string
	mu    sync.RWMutex
	token string
}

// New returns a Store backed by path. Call Load to pick up a token
// persisted by a previous run.
func New(path string) *Store {
	if path == "" {
		path = DefaultFile
	}
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads a previously persisted token. A missing file is not an error.
func (s *Store) Load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.token = ""
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()

	var p persisted
	if err := json.NewDecoder(f).Decode(&p); err != nil {
		return fmt.Errorf("decode token file: %w", err)
	}

	s.mu.Lock()
	s.token = p.Token
	s.mu.Unlock()
	return nil
}

// SetToken makes token the active bearer credential and persists it.
// An empty token clears both the in-memory value and the file.
func (s *Store) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token == "" {
		s.token = ""
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove token file: %w", err)
		}
		return nil
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create token dir: %w", err)
		}
	}
	b, err := json.Marshal(persisted{Token: token})
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, b, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	s.token = token
	return nil
}

// Clear is SetToken("").
func (s *Store) Clear() error {
	return s.SetToken("")
}

// Token returns the active token, or "" when logged out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// HasToken reports whether a session token is present.
func (s *Store) HasToken() bool {
	return s.Token() != ""
}

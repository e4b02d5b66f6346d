package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store holds the access and refresh tokens.
type Store interface {
	Token() string
	RefreshToken() string
	SetTokens(token, refreshToken string) error
	Clear() error
}

// MemoryStore keeps tokens in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	token   string
	refresh string
}

// NewMemoryStore creates a store seeded with the given tokens.
func NewMemoryStore(token, refreshToken string) *MemoryStore {
	return &MemoryStore{token: token, refresh: refreshToken}
}

func (s *MemoryStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *MemoryStore) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

func (s *MemoryStore) SetTokens(token, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.refresh = token, refreshToken
	return nil
}

func (s *MemoryStore) Clear() error {
	return s.SetTokens("", "")
}

type tokenFile struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// FileStore persists tokens as JSON in a file readable only by the owner.
type FileStore struct {
	path string
	mem  MemoryStore
}

// OpenFileStore loads path, which may not exist yet.
func OpenFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth: read token file: %w", err)
	}

	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("auth: parse token file %s: %w", path, err)
	}
	fs.mem.token, fs.mem.refresh = tf.Token, tf.RefreshToken
	return fs, nil
}

func (s *FileStore) Token() string        { return s.mem.Token() }
func (s *FileStore) RefreshToken() string { return s.mem.RefreshToken() }

func (s *FileStore) SetTokens(token, refreshToken string) error {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()

	data, err := json.MarshalIndent(tokenFile{Token: token, RefreshToken: refreshToken}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("auth: create token dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("auth: write token file: %w", err)
	}
	s.mem.token, s.mem.refresh = token, refreshToken
	return nil
}

// Clear removes the token file.
func (s *FileStore) Clear() error {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("auth: remove token file: %w", err)
	}
	s.mem.token, s.mem.refresh = "", ""
	return nil
}

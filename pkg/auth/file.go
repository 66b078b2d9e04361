package auth

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// tokenFile is the on-disk layout of a FileStore.
type tokenFile struct {
	AccessToken string    `yaml:"access_token"`
	TokenType   string    `yaml:"token_type"`
	SavedAt     time.Time `yaml:"saved_at"`
}

// FileStore keeps the token in a YAML file readable only by the owner.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by path. The file is created on Set.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Get implements TokenStore. A missing file means no token.
func (s *FileStore) Get(_ context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read token file: %w", err)
	}

	var tf tokenFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return "", false, fmt.Errorf("parse token file %s: %w", s.path, err)
	}
	return tf.AccessToken, tf.AccessToken != "", nil
}

// Set implements TokenStore.
func (s *FileStore) Set(_ context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}

	data, err := yaml.Marshal(tokenFile{
		AccessToken: token,
		TokenType:   "Bearer",
		SavedAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode token file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	// Replace atomically via temp file and rename
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".token-*")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod token file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

// Clear implements TokenStore.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

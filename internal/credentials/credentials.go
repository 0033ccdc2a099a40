// Package credentials stores reasoning-provider API keys. Keys are opaque to the rest
// of the system: callers only ask whether one exists, or fetch it right before use.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrNoKey is returned by Get when no key is stored for the provider.
var ErrNoKey = errors.New("no api key stored")

// Store is the credential storage contract.
type Store interface {
	Set(provider, key string) error
	Get(provider string) (string, error)
	Delete(provider string) error
	Has(provider string) bool
}

// envVars maps providers to environment variables consulted when no key is stored.
var envVars = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"custom":    "TASKWATCH_CUSTOM_API_KEY",
}

// FileStore keeps keys in a 0600 YAML file under the protected directory.
type FileStore struct {
	path string
	env  func(string) string

	mu sync.Mutex
}

// NewFileStore returns a FileStore at dir/credentials.yaml.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, "credentials.yaml"), env: os.Getenv}
}

func (s *FileStore) load() (map[string]string, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	out := map[string]string{}
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return out, nil
}

func (s *FileStore) save(keys map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	b, err := yaml.Marshal(keys)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Set stores key for provider, replacing any previous key.
func (s *FileStore) Set(provider, key string) error {
	provider = strings.TrimSpace(provider)
	key = strings.TrimSpace(key)
	if provider == "" || key == "" {
		return errors.New("provider and key required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, err := s.load()
	if err != nil {
		return err
	}
	keys[provider] = key
	return s.save(keys)
}

// Get returns the stored key, falling back to the provider's environment variable.
func (s *FileStore) Get(provider string) (string, error) {
	s.mu.Lock()
	keys, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	if k := keys[provider]; k != "" {
		return k, nil
	}
	if name, ok := envVars[provider]; ok {
		if k := strings.TrimSpace(s.env(name)); k != "" {
			return k, nil
		}
	}
	return "", fmt.Errorf("%s: %w", provider, ErrNoKey)
}

// Delete removes the stored key. Deleting a missing key is not an error.
func (s *FileStore) Delete(provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := keys[provider]; !ok {
		return nil
	}
	delete(keys, provider)
	return s.save(keys)
}

// Has reports whether a key is available for provider.
func (s *FileStore) Has(provider string) bool {
	k, err := s.Get(provider)
	return err == nil && k != ""
}

// RequiresKey reports whether provider cannot be used without an API key.
func RequiresKey(provider string) bool {
	return provider == "anthropic" || provider == "openai"
}

// Package secrets resolves named credentials (storage access keys, TikTok
// client credentials) from a configured backend so secret values never live
// in config files.
//
// Three backends with different deployment tradeoffs:
//   - Env: environment variables (requires external secret management)
//   - File: one file per secret under a directory with strict permissions
//   - Keyring: OS-native credential storage (macOS Keychain, Secret Service)
package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

// Source resolves a secret by its well-known name.
type Source interface {
	// Get returns the secret value. Returns an error if the secret is
	// missing or empty; absence is never silently an empty string.
	Get(ctx context.Context, name string) (string, error)
}

// EnvSource reads secrets from environment variables.
// A secret named storage_access_key_id with prefix TOKENVAULT_SECRET_ is
// looked up as TOKENVAULT_SECRET_STORAGE_ACCESS_KEY_ID.
type EnvSource struct {
	prefix string
}

// Compile-time check to ensure EnvSource implements Source
var _ Source = (*EnvSource)(nil)

// NewEnvSource creates an EnvSource with the given variable prefix.
func NewEnvSource(prefix string) (*EnvSource, error) {
	if prefix == "" {
		return nil, fmt.Errorf("prefix cannot be empty")
	}
	return &EnvSource{prefix: prefix}, nil
}

// Get returns the secret from the environment. Returns an error if unset or empty.
func (e *EnvSource) Get(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := e.prefix + strings.ToUpper(name)
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", key)
	}
	return value, nil
}

// FileSource reads secrets from one file per secret under a base directory.
type FileSource struct {
	dir string
}

// Compile-time check to ensure FileSource implements Source
var _ Source = (*FileSource)(nil)

// NewFileSource creates a FileSource rooted at dir.
func NewFileSource(dir string) (*FileSource, error) {
	if dir == "" {
		return nil, fmt.Errorf("directory cannot be empty")
	}
	return &FileSource{dir: dir}, nil
}

// Get returns the trimmed contents of the secret's file. Files must be owner
// read/write only; anything broader is rejected rather than read.
func (f *FileSource) Get(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := filepath.Join(f.dir, name)

	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Mode().Perm()&0o077 != 0 {
		return "", fmt.Errorf("insecure permissions on %s: %04o (expected 0600)", path, info.Mode().Perm())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", fmt.Errorf("empty secret file %s", path)
	}
	return value, nil
}

// KeyringSource reads secrets from OS-native credential storage.
type KeyringSource struct {
	service string
}

// Compile-time check to ensure KeyringSource implements Source
var _ Source = (*KeyringSource)(nil)

// NewKeyringSource creates a KeyringSource scoped to the given service name.
func NewKeyringSource(service string) (*KeyringSource, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	return &KeyringSource{service: service}, nil
}

// Get returns the secret from the system keyring. Returns an error if not
// found or empty.
func (k *KeyringSource) Get(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	value, err := keyring.Get(k.service, name)
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", fmt.Errorf("empty secret in keyring for service %s, name %s", k.service, name)
	}
	return value, nil
}

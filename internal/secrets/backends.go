// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"reportforge/cli/internal/keychain"
)

// EnvBackend reads secrets from environment variables. The name "db-password" with
// prefix "RF_" is looked up as RF_DB_PASSWORD.
type EnvBackend struct {
	Prefix string
	lookup func(string) (string, bool)
}

// NewEnvBackend creates an environment backend.
func NewEnvBackend(prefix string) *EnvBackend {
	return &EnvBackend{Prefix: prefix, lookup: os.LookupEnv}
}

func (b *EnvBackend) Name() string { return "env" }

// VarName returns the environment variable consulted for name.
func (b *EnvBackend) VarName(name string) string {
	r := strings.NewReplacer("-", "_", ".", "_", "/", "_")
	return b.Prefix + strings.ToUpper(r.Replace(name))
}

func (b *EnvBackend) Get(_ context.Context, name string) (string, *time.Time, error) {
	v, ok := b.lookup(b.VarName(name))
	if !ok || v == "" {
		return "", nil, fmt.Errorf("%s is not set: %w", b.VarName(name), ErrSecretNotFound)
	}
	return v, nil, nil
}

// KeyringBackend reads secrets stored with `reportforge secrets set`.
type KeyringBackend struct {
	manager *keychain.Manager
}

// NewKeyringBackend wraps a keychain manager.
func NewKeyringBackend(m *keychain.Manager) *KeyringBackend {
	return &KeyringBackend{manager: m}
}

func (b *KeyringBackend) Name() string { return "keyring" }

func (b *KeyringBackend) Get(ctx context.Context, name string) (string, *time.Time, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	v, err := b.manager.LoadSecret(name)
	if err != nil {
		if errors.Is(err, keychain.ErrNotFound) {
			return "", nil, fmt.Errorf("keychain entry %q: %w", name, ErrSecretNotFound)
		}
		if strings.Contains(strings.ToLower(err.Error()), "denied") {
			return "", nil, fmt.Errorf("keychain entry %q: %v: %w", name, err, ErrPermissionDenied)
		}
		return "", nil, err
	}
	return v, nil, nil
}

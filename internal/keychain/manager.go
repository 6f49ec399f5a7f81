// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain stores named secrets in the OS credential store. It is the
// local vault behind the keyring secret backend and the secrets set/rm/ls commands.
//
// macOS uses the security tool first and falls back to the Keychain API; Windows uses
// Credential Manager; Linux tries Secret Service, KWallet and pass in that order.
package keychain

import (
	"errors"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/99designs/keyring"
)

// ServiceName is the credential store namespace.
const ServiceName = "reportforge"

// Entries are stored as "secret:<name>" so that other keys under the service are ignored.
const keyPrefix = "secret:"

var (
	// ErrNotFound is returned when a secret name has no entry or an empty one.
	ErrNotFound = errors.New("secret not found in keychain")

	errListUnsupported = errors.New("this credential store cannot list its entries")
)

var (
	shared   *Manager
	sharedMu sync.Mutex
)

// Manager is safe for concurrent use.
type Manager struct {
	mu   sync.RWMutex
	ring keyring.Keyring
}

// NewWithKeyring wraps an opened keyring.
func NewWithKeyring(ring keyring.Keyring) *Manager {
	return &Manager{ring: ring}
}

// GetManager returns the process-wide manager, opening the credential store on first
// use. A failed open is retried on the next call.
func GetManager() (*Manager, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if shared != nil {
		return shared, nil
	}
	ring, err := openRing()
	if err != nil {
		return nil, err
	}
	shared = NewWithKeyring(ring)
	return shared, nil
}

func openRing() (keyring.Keyring, error) {
	var backends []keyring.BackendType
	switch runtime.GOOS {
	case "darwin":
		if ring, err := nativeRing(); err == nil {
			return ring, nil
		}
		backends = []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		backends = []keyring.BackendType{keyring.WinCredBackend}
	case "linux":
		backends = []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend, keyring.PassBackend}
	default:
		return nil, errors.New("no OS credential store on " + runtime.GOOS + "; use vault.kind env or azure")
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:     ServiceName,
		AllowedBackends: backends,
		PassPrefix:      ServiceName,
		WinCredPrefix:   ServiceName,
	})
	if err != nil {
		return nil, errors.New("OS credential store unavailable: " + err.Error())
	}
	return ring, nil
}

// SaveSecret stores value under name, replacing any previous value.
func (m *Manager) SaveSecret(name, value string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("secret name is required")
	}
	if value == "" {
		return errors.New("secret value is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ring.Set(keyring.Item{
		Key:   keyPrefix + name,
		Data:  []byte(value),
		Label: ServiceName + " " + name,
	})
}

// LoadSecret returns the value stored under name, or ErrNotFound.
func (m *Manager) LoadSecret(name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, err := m.ring.Get(keyPrefix + name)
	switch {
	case errors.Is(err, keyring.ErrKeyNotFound):
		return "", ErrNotFound
	case err != nil:
		return "", err
	case len(it.Data) == 0:
		return "", ErrNotFound
	}
	return string(it.Data), nil
}

// DeleteSecret removes name. Deleting a missing secret is not an error.
func (m *Manager) DeleteSecret(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ring.Remove(keyPrefix + name); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return err
	}
	return nil
}

// ListSecrets returns the stored secret names in sorted order.
func (m *Manager) ListSecrets() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys, err := m.ring.Keys()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, k := range keys {
		if name, ok := strings.CutPrefix(k, keyPrefix); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

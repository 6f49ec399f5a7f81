// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package keychain

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretLifecycle(t *testing.T) {
	m := NewWithKeyring(keyring.NewArrayKeyring(nil))

	_, err := m.LoadSecret("db-password")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.SaveSecret("db-password", "s3cret"))
	v, err := m.LoadSecret("db-password")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", v)

	names, err := m.ListSecrets()
	require.NoError(t, err)
	assert.Equal(t, []string{"db-password"}, names)

	require.NoError(t, m.DeleteSecret("db-password"))
	require.NoError(t, m.DeleteSecret("db-password"))
	_, err = m.LoadSecret("db-password")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveSecretRejectsEmpty(t *testing.T) {
	m := NewWithKeyring(keyring.NewArrayKeyring(nil))
	assert.Error(t, m.SaveSecret("", "x"))
	assert.Error(t, m.SaveSecret("name", ""))
}

func TestListSecretsSkipsForeignKeys(t *testing.T) {
	ring := keyring.NewArrayKeyring([]keyring.Item{
		{Key: "secret:smtp-password", Data: []byte("a")},
		{Key: "token", Data: []byte("b")},
		{Key: "secret:db-password", Data: []byte("c")},
	})
	names, err := NewWithKeyring(ring).ListSecrets()
	require.NoError(t, err)
	assert.Equal(t, []string{"db-password", "smtp-password"}, names)
}

type brokenRing struct{ keyring.Keyring }

func (brokenRing) Get(string) (keyring.Item, error) { return keyring.Item{}, errors.New("locked") }

func TestLoadSecretPassesStoreErrors(t *testing.T) {
	m := NewWithKeyring(brokenRing{keyring.NewArrayKeyring(nil)})
	_, err := m.LoadSecret("db-password")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

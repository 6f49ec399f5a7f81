// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package secrets

import (
	"context"
	"os"

	errs "reportforge/cli/internal/errors"
	"reportforge/cli/internal/keychain"
)

// VaultRef selects the secret store for a run.
type VaultRef struct {
	Kind string `yaml:"kind" json:"kind"` // env | keyring | azure
	// URL of the vault (azure).
	URL      string `yaml:"url,omitempty" json:"url,omitempty"`
	TenantID string `yaml:"tenant_id,omitempty" json:"tenant_id,omitempty"`
	ClientID string `yaml:"client_id,omitempty" json:"client_id,omitempty"`
	// ClientSecretEnv names the environment variable holding the service principal secret.
	ClientSecretEnv string `yaml:"client_secret_env,omitempty" json:"client_secret_env,omitempty"`
	AuthorityHost   string `yaml:"authority_host,omitempty" json:"authority_host,omitempty"`
	// Prefix is prepended to variable names (env).
	Prefix string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// Open returns the Backend described by ref.
func Open(_ context.Context, ref VaultRef) (Backend, error) {
	switch ref.Kind {
	case "", "env":
		return NewEnvBackend(ref.Prefix), nil
	case "keyring":
		km, err := keychain.GetManager()
		if err != nil {
			return nil, errs.Wrap(errs.SecretUnavailable, "OS keychain is not available", err).In("secrets")
		}
		return NewKeyringBackend(km), nil
	case "azure":
		envName := ref.ClientSecretEnv
		if envName == "" {
			envName = "AZURE_CLIENT_SECRET"
		}
		b, err := NewAzureBackend(AzureConfig{
			VaultURL:      ref.URL,
			TenantID:      ref.TenantID,
			ClientID:      ref.ClientID,
			ClientSecret:  os.Getenv(envName),
			AuthorityHost: ref.AuthorityHost,
		})
		if err != nil {
			return nil, errs.Wrap(errs.SecretUnavailable, "cannot open azure key vault", err).In("secrets")
		}
		return b, nil
	default:
		return nil, errs.Newf(errs.ConfigError, "unknown vault kind %q", ref.Kind)
	}
}

// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"reportforge/cli/internal/httperrors"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	keyVaultAPIVersion = "7.4"
	keyVaultScope      = "https://vault.azure.net/.default"
	defaultAuthority   = "https://login.microsoftonline.com"
)

var reVaultSecretName = regexp.MustCompile(`^[0-9A-Za-z-]{1,127}$`)

// AzureConfig describes an Azure Key Vault and the service principal reading it.
type AzureConfig struct {
	VaultURL     string
	TenantID     string
	ClientID     string
	ClientSecret string
	// AuthorityHost overrides the login endpoint, mainly for sovereign clouds.
	AuthorityHost string
}

// AzureBackend reads secrets through the Key Vault REST API with an OAuth2
// client-credentials token. The token is fetched under the context of the Get that
// needs it and reused until it expires.
type AzureBackend struct {
	vaultURL string
	creds    clientcredentials.Config
	client   *http.Client

	mu    sync.Mutex
	token *oauth2.Token
}

// NewAzureBackend validates cfg.
func NewAzureBackend(cfg AzureConfig) (*AzureBackend, error) {
	if cfg.VaultURL == "" || cfg.TenantID == "" || cfg.ClientID == "" {
		return nil, errors.New("azure vault needs url, tenant_id and client_id")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("azure client secret is empty: %w", ErrSecretNotFound)
	}
	u, err := url.Parse(cfg.VaultURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid vault url %q", cfg.VaultURL)
	}
	authority := cfg.AuthorityHost
	if authority == "" {
		authority = defaultAuthority
	}
	return &AzureBackend{
		vaultURL: strings.TrimRight(cfg.VaultURL, "/"),
		creds: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     strings.TrimRight(authority, "/") + "/" + url.PathEscape(cfg.TenantID) + "/oauth2/v2.0/token",
			Scopes:       []string{keyVaultScope},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		client: &http.Client{},
	}, nil
}

func (b *AzureBackend) accessToken(ctx context.Context) (*oauth2.Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.token.Valid() {
		return b.token, nil
	}
	tok, err := b.creds.Token(context.WithValue(ctx, oauth2.HTTPClient, b.client))
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && !httperrors.IsServerStatus(re.Response.StatusCode) {
			return nil, fmt.Errorf("token request rejected (%s): %w", re.Response.Status, ErrPermissionDenied)
		}
		return nil, err
	}
	b.token = tok
	return tok, nil
}

func (b *AzureBackend) Name() string { return "azure:" + httperrors.HostOf(b.vaultURL) }

type keyVaultSecret struct {
	Value      string `json:"value"`
	Attributes struct {
		Enabled *bool  `json:"enabled"`
		Exp     *int64 `json:"exp"`
	} `json:"attributes"`
}

// Get issues GET {vault}/secrets/{name}?api-version=7.4.
func (b *AzureBackend) Get(ctx context.Context, name string) (string, *time.Time, error) {
	if !reVaultSecretName.MatchString(name) {
		return "", nil, fmt.Errorf("invalid key vault secret name %q: %w", name, ErrSecretNotFound)
	}
	endpoint := fmt.Sprintf("%s/secrets/%s?api-version=%s", b.vaultURL, url.PathEscape(name), keyVaultAPIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Accept", "application/json")

	tok, err := b.accessToken(ctx)
	if err != nil {
		return "", nil, err
	}
	tok.SetAuthHeader(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return "", nil, fmt.Errorf("key vault secret %q: %w", name, ErrSecretNotFound)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", nil, fmt.Errorf("key vault returned status %d for %q: %w", resp.StatusCode, name, ErrPermissionDenied)
	case httperrors.IsServerStatus(resp.StatusCode):
		return "", nil, fmt.Errorf("key vault returned status %d: service unavailable", resp.StatusCode)
	default:
		return "", nil, fmt.Errorf("key vault returned status %d for %q", resp.StatusCode, name)
	}

	var s keyVaultSecret
	if err := json.Unmarshal(body, &s); err != nil {
		return "", nil, fmt.Errorf("decode key vault response: %w", err)
	}
	if s.Attributes.Enabled != nil && !*s.Attributes.Enabled {
		return "", nil, fmt.Errorf("key vault secret %q is disabled: %w", name, ErrSecretNotFound)
	}
	var expiry *time.Time
	if s.Attributes.Exp != nil {
		t := time.Unix(*s.Attributes.Exp, 0).UTC()
		expiry = &t
	}
	return s.Value, expiry, nil
}

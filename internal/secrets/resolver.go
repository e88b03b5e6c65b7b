// Package secrets resolves named secrets from Azure Key Vault.
//
// Only the vault client is cached. Every GetSecretValue call is a live round
// trip, so rotated values are picked up without a restart.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	dserrors "github.com/systmms/userprofile/internal/errors"
	"github.com/systmms/userprofile/internal/logging"
)

// KeyVaultClientAPI is the subset of azsecrets.Client the resolver uses.
type KeyVaultClientAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// CredentialSource supplies the token credential used to build the client.
type CredentialSource interface {
	Credential() (azcore.TokenCredential, error)
}

// Resolver fetches secret values by name.
type Resolver struct {
	vaultURL    string
	credentials CredentialSource
	logger      *logging.Logger

	mu     sync.Mutex
	client KeyVaultClientAPI

	// builds counts client constructions.
	builds int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClient injects a vault client (for testing).
func WithClient(client KeyVaultClientAPI) Option {
	return func(r *Resolver) {
		r.client = client
	}
}

// WithLogger sets the resolver's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver returns a resolver for the vault at vaultURL. An empty URL is
// accepted here and reported on first lookup.
func NewResolver(vaultURL string, credentials CredentialSource, opts ...Option) *Resolver {
	r := &Resolver{
		vaultURL:    vaultURL,
		credentials: credentials,
		logger:      logging.New(false),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetSecretValue returns the current value of the named secret. A secret
// with no value resolves to the empty string; callers decide whether that is
// an error.
func (r *Resolver) GetSecretValue(ctx context.Context, name string) (string, error) {
	client, err := r.getClient()
	if err != nil {
		return "", err
	}

	r.logger.Debug("Fetching secret %s from Key Vault", name)

	resp, err := client.GetSecret(ctx, name, "", nil)
	if err != nil {
		if isSecretNotFound(err) {
			return "", dserrors.SecretNotFoundError{Name: name, Err: err}
		}
		return "", dserrors.Dependency("keyvault", fmt.Sprintf("get secret %s", name), err)
	}

	if resp.Value == nil {
		return "", nil
	}
	return *resp.Value, nil
}

func (r *Resolver) getClient() (KeyVaultClientAPI, error) {
	if r.vaultURL == "" {
		return nil, dserrors.ConfigError{
			Field:      "key_vault_url",
			Message:    "KEY_VAULT_URL is not configured",
			Suggestion: "Set KEY_VAULT_URL to the vault endpoint (e.g., https://my-vault.vault.azure.net/)",
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client, nil
	}

	if r.credentials == nil {
		return nil, dserrors.ConfigError{
			Field:   "credential",
			Message: "no credential source configured for Key Vault",
		}
	}
	cred, err := r.credentials.Credential()
	if err != nil {
		return nil, err
	}

	client, err := azsecrets.NewClient(r.vaultURL, cred, nil)
	if err != nil {
		return nil, dserrors.Dependency("keyvault", "create client", err)
	}

	r.builds++
	r.client = client
	return client, nil
}

func isSecretNotFound(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusNotFound || respErr.ErrorCode == "SecretNotFound"
	}
	return false
}

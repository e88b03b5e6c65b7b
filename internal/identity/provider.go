// Package identity supplies the ambient Azure credential shared by the
// secret resolver, the blob store and the database token path.
package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	dserrors "github.com/systmms/userprofile/internal/errors"
	"github.com/systmms/userprofile/internal/logging"
)

// Provider builds the process credential on first use and returns the same
// instance afterwards. A failed build is not remembered.
type Provider struct {
	managedIdentityClientID string
	logger                  *logging.Logger

	mu         sync.Mutex
	credential azcore.TokenCredential

	// newCredential is swapped in tests to observe construction.
	newCredential func(clientID string) (azcore.TokenCredential, error)
}

// Option configures a Provider.
type Option func(*Provider)

// WithCredential injects a pre-built credential, bypassing azidentity.
func WithCredential(cred azcore.TokenCredential) Option {
	return func(p *Provider) {
		p.credential = cred
	}
}

// WithManagedIdentityClientID selects a user-assigned managed identity.
func WithManagedIdentityClientID(clientID string) Option {
	return func(p *Provider) {
		p.managedIdentityClientID = clientID
	}
}

// WithLogger sets the logger used for credential diagnostics.
func WithLogger(logger *logging.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider returns a provider. No credential is built until first use.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		logger:        logging.New(false),
		newCredential: buildCredential,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Credential returns the cached credential, creating it on the first call.
func (p *Provider) Credential() (azcore.TokenCredential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.credential != nil {
		return p.credential, nil
	}

	cred, err := p.newCredential(p.managedIdentityClientID)
	if err != nil {
		return nil, dserrors.Dependency("identity", "create credential", err)
	}

	if p.managedIdentityClientID != "" {
		p.logger.Debug("Using user-assigned managed identity %s", p.managedIdentityClientID)
	} else {
		p.logger.Debug("Using default Azure credential chain")
	}
	p.credential = cred
	return cred, nil
}

// Token fetches an access token for scope from the ambient credential.
func (p *Provider) Token(ctx context.Context, scope string) (azcore.AccessToken, error) {
	cred, err := p.Credential()
	if err != nil {
		return azcore.AccessToken{}, err
	}

	token, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{scope}})
	if err != nil {
		return azcore.AccessToken{}, dserrors.Dependency("identity", fmt.Sprintf("get token for %s", scope), err)
	}
	if p.logger.DebugEnabled() {
		p.logger.With("scope", scope, "token", logging.Secret(token.Token)).
			Debug("Acquired access token expiring %s", token.ExpiresOn.Format(time.RFC3339))
	}
	return token, nil
}

// buildCredential picks a user-assigned managed identity when a client ID is
// configured and the default chain otherwise. The default chain has no
// interactive browser step.
func buildCredential(clientID string) (azcore.TokenCredential, error) {
	if clientID != "" {
		return azidentity.NewManagedIdentityCredential(&azidentity.ManagedIdentityCredentialOptions{
			ID: azidentity.ClientID(clientID),
		})
	}
	return azidentity.NewDefaultAzureCredential(nil)
}

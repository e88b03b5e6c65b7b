package fakes

import (
	"context"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

// Credential is a fake azcore.TokenCredential that hands out a fixed token.
type Credential struct {
	// Token is returned from GetToken. Defaults to "fake-token".
	Token string
	// Err, when set, is returned instead of a token.
	Err error

	mu     sync.Mutex
	scopes [][]string
}

// NewCredential returns a credential issuing token.
func NewCredential(token string) *Credential {
	return &Credential{Token: token}
}

// GetToken records the requested scopes and returns the configured token.
func (c *Credential) GetToken(_ context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.scopes = append(c.scopes, append([]string(nil), opts.Scopes...))
	if c.Err != nil {
		return azcore.AccessToken{}, c.Err
	}

	token := c.Token
	if token == "" {
		token = "fake-token"
	}
	return azcore.AccessToken{Token: token, ExpiresOn: time.Now().Add(time.Hour)}, nil
}

// Requests returns the scope lists of every GetToken call.
func (c *Credential) Requests() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]string(nil), c.scopes...)
}

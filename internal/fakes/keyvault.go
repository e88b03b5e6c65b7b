package fakes

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

// KeyVault is a fake Key Vault secrets client.
type KeyVault struct {
	mu      sync.Mutex
	secrets map[string]*string
	errors  map[string]error
	calls   []string
}

// NewKeyVault returns an empty vault.
func NewKeyVault() *KeyVault {
	return &KeyVault{
		secrets: make(map[string]*string),
		errors:  make(map[string]error),
	}
}

// SetSecret stores value under name.
func (f *KeyVault) SetSecret(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.secrets[name] = to.Ptr(value)
}

// SetNilSecret stores a secret whose value field is absent.
func (f *KeyVault) SetNilSecret(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.secrets[name] = nil
}

// SetError makes lookups of name fail with err.
func (f *KeyVault) SetError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[name] = err
}

// Calls returns the secret names requested so far, in order.
func (f *KeyVault) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// GetSecret returns the stored value, or a 404 SecretNotFound response error.
func (f *KeyVault) GetSecret(_ context.Context, name string, _ string, _ *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, name)

	if err, ok := f.errors[name]; ok {
		return azsecrets.GetSecretResponse{}, err
	}

	value, ok := f.secrets[name]
	if !ok {
		return azsecrets.GetSecretResponse{}, &azcore.ResponseError{
			StatusCode: http.StatusNotFound,
			ErrorCode:  "SecretNotFound",
		}
	}

	return azsecrets.GetSecretResponse{
		Secret: azsecrets.Secret{
			ID:    (*azsecrets.ID)(to.Ptr(fmt.Sprintf("https://fake-vault.vault.azure.net/secrets/%s", name))),
			Value: value,
		},
	}, nil
}

package identity

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dserrors "github.com/systmms/userprofile/internal/errors"
	"github.com/systmms/userprofile/internal/fakes"
	"github.com/systmms/userprofile/internal/logging"
)

func TestCredentialIsCached(t *testing.T) {
	t.Parallel()

	var builds int
	var mu sync.Mutex
	p := NewProvider(WithManagedIdentityClientID("00000000-0000-0000-0000-000000000001"))
	p.newCredential = func(clientID string) (azcore.TokenCredential, error) {
		mu.Lock()
		defer mu.Unlock()
		builds++
		assert.Equal(t, "00000000-0000-0000-0000-000000000001", clientID)
		return fakes.NewCredential("t"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Credential()
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	first, err := p.Credential()
	require.NoError(t, err)
	second, err := p.Credential()
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, builds)
}

func TestCredentialFailureIsNotCached(t *testing.T) {
	t.Parallel()

	attempts := 0
	p := NewProvider()
	p.newCredential = func(string) (azcore.TokenCredential, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("no identity endpoint")
		}
		return fakes.NewCredential("t"), nil
	}

	_, err := p.Credential()
	var dep dserrors.DependencyError
	require.True(t, errors.As(err, &dep))
	assert.Equal(t, "identity", dep.Service)

	_, err = p.Credential()
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestToken(t *testing.T) {
	t.Parallel()

	cred := fakes.NewCredential("db-token")
	p := NewProvider(WithCredential(cred))

	tok, err := p.Token(context.Background(), "https://ossrdbms-aad.database.windows.net/.default")
	require.NoError(t, err)
	assert.Equal(t, "db-token", tok.Token)
	assert.Equal(t, [][]string{{"https://ossrdbms-aad.database.windows.net/.default"}}, cred.Requests())
}

func TestTokenLogsScopeWithoutToken(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewProvider(
		WithCredential(fakes.NewCredential("eyJhbGciOiJSUzI1NiJ9.secret-token")),
		WithLogger(logging.NewWithWriter(&buf, true, true)),
	)

	_, err := p.Token(context.Background(), "https://storage.azure.com/.default")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"scope":"https://storage.azure.com/.default"`)
	assert.Contains(t, out, `"token":"[REDACTED]"`)
	assert.NotContains(t, out, "secret-token")
}

func TestTokenFailure(t *testing.T) {
	t.Parallel()

	cred := &fakes.Credential{Err: errors.New("AADSTS700016: application not found")}
	p := NewProvider(WithCredential(cred))

	_, err := p.Token(context.Background(), "scope/.default")

	var dep dserrors.DependencyError
	require.True(t, errors.As(err, &dep))
	assert.Equal(t, "identity", dep.Service)
	assert.Contains(t, err.Error(), "AADSTS700016")
}

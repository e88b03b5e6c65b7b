package secrets

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dserrors "github.com/systmms/userprofile/internal/errors"
	"github.com/systmms/userprofile/internal/fakes"
)

const testVaultURL = "https://test-vault.vault.azure.net/"

type countingSource struct {
	mu    sync.Mutex
	calls int
	cred  azcore.TokenCredential
	err   error
}

func (s *countingSource) Credential() (azcore.TokenCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.cred, s.err
}

func TestGetSecretValue(t *testing.T) {
	t.Parallel()

	vault := fakes.NewKeyVault()
	vault.SetSecret("sql-connection-string", "Server=db;Uid=app;Pwd=pw")
	vault.SetNilSecret("no-value")
	vault.SetError("throttled", &azcore.ResponseError{StatusCode: http.StatusTooManyRequests, ErrorCode: "Throttled"})

	r := NewResolver(testVaultURL, nil, WithClient(vault))

	t.Run("existing secret", func(t *testing.T) {
		got, err := r.GetSecretValue(context.Background(), "sql-connection-string")
		require.NoError(t, err)
		assert.Equal(t, "Server=db;Uid=app;Pwd=pw", got)
	})

	t.Run("missing secret", func(t *testing.T) {
		_, err := r.GetSecretValue(context.Background(), "absent")

		var nf dserrors.SecretNotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, "absent", nf.Name)
	})

	t.Run("secret without value", func(t *testing.T) {
		got, err := r.GetSecretValue(context.Background(), "no-value")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("other service failure", func(t *testing.T) {
		_, err := r.GetSecretValue(context.Background(), "throttled")

		var dep dserrors.DependencyError
		require.True(t, errors.As(err, &dep))
		assert.Equal(t, "keyvault", dep.Service)
	})
}

func TestGetSecretValueIsLive(t *testing.T) {
	t.Parallel()

	vault := fakes.NewKeyVault()
	vault.SetSecret("rotating", "v1")
	r := NewResolver(testVaultURL, nil, WithClient(vault))

	got, err := r.GetSecretValue(context.Background(), "rotating")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	vault.SetSecret("rotating", "v2")
	got, err = r.GetSecretValue(context.Background(), "rotating")
	require.NoError(t, err)
	assert.Equal(t, "v2", got)

	assert.Equal(t, []string{"rotating", "rotating"}, vault.Calls())
}

func TestGetSecretValueWithoutVaultURL(t *testing.T) {
	t.Parallel()

	r := NewResolver("", nil, WithClient(fakes.NewKeyVault()))
	_, err := r.GetSecretValue(context.Background(), "anything")

	var cfgErr dserrors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "key_vault_url", cfgErr.Field)
}

func TestClientBuiltOnce(t *testing.T) {
	t.Parallel()

	source := &countingSource{cred: fakes.NewCredential("t")}
	r := NewResolver(testVaultURL, source)

	var wg sync.WaitGroup
	clients := make([]KeyVaultClientAPI, 8)
	for i := range clients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := r.getClient()
			assert.NoError(t, err)
			clients[i] = c
		}(i)
	}
	wg.Wait()

	for _, c := range clients {
		assert.Same(t, clients[0], c)
	}
	assert.Equal(t, 1, r.builds)
	assert.Equal(t, 1, source.calls)
}

func TestCredentialFailureIsRetried(t *testing.T) {
	t.Parallel()

	source := &countingSource{err: errors.New("no identity available")}
	r := NewResolver(testVaultURL, source)

	_, err := r.GetSecretValue(context.Background(), "x")
	require.Error(t, err)

	source.err = nil
	source.cred = fakes.NewCredential("t")
	_, err = r.getClient()
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)
}

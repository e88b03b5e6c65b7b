package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dserrors "github.com/systmms/userprofile/internal/errors"
	"gopkg.in/yaml.v3"
)

// clearEnv blanks every recognised variable so ambient values on the test host
// cannot leak into the assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range EnvVars() {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", s.Environment)
	assert.Empty(t, s.KeyVaultURL)
	assert.Equal(t, "profile-image", s.StorageContainerName)
	assert.Equal(t, "sql-connection-string", s.Database.ConnectionSecretName)
	assert.Equal(t, DriverMySQL, s.Database.Driver)
	assert.Equal(t, AuthModeAuto, s.Database.AuthMode)
	assert.Equal(t, DefaultTokenScope, s.Database.TokenScope)
	assert.Equal(t, ":8000", s.HTTP.Addr)
	assert.Empty(t, s.HTTP.CORSAllowedOrigins)
	assert.Equal(t, int64(10<<20), s.HTTP.MaxUploadBytes)
	assert.Equal(t, 15, s.HTTP.PhotoURLExpiryMinutes)
	assert.Equal(t, LogLevelInfo, s.Logger.LogLevel)
	assert.Equal(t, LogTypeConsole, s.Logger.LogType)
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("KEY_VAULT_URL", "https://my-vault.vault.azure.net/")
	t.Setenv("AZURE_STORAGE_ACCOUNT_URL", "https://acct.blob.core.windows.net")
	t.Setenv("STORAGE_CONTAINER_NAME", "photos")
	t.Setenv("SQL_CONNECTION_SECRET_NAME", "mysql-conn")
	t.Setenv("DB_DRIVER", "POSTGRES")
	t.Setenv("DB_AUTH_MODE", "identity")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("PHOTO_URL_EXPIRY_MINUTES", "30")
	t.Setenv("LOG_LEVEL", "debug")

	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "production", s.Environment)
	assert.Equal(t, "https://my-vault.vault.azure.net/", s.KeyVaultURL)
	assert.Equal(t, "https://acct.blob.core.windows.net", s.StorageAccountURL)
	assert.Equal(t, "photos", s.StorageContainerName)
	assert.Equal(t, "mysql-conn", s.Database.ConnectionSecretName)
	assert.Equal(t, DriverPostgres, s.Database.Driver)
	assert.Equal(t, AuthModeIdentity, s.Database.AuthMode)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, s.HTTP.CORSAllowedOrigins)
	assert.Equal(t, 30, s.HTTP.PhotoURLExpiryMinutes)
	assert.Equal(t, LogLevelDebug, s.Logger.LogLevel)
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "userprofile.yaml")
	content := []byte(`key_vault_url: https://file-vault.vault.azure.net/
storage_container_name: from-file
database:
  db_driver: postgres
http:
  cors_allowed_origins:
    - https://a.example
    - https://b.example
logger:
  log_level: warning
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("STORAGE_CONTAINER_NAME", "from-env")

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://file-vault.vault.azure.net/", s.KeyVaultURL)
	assert.Equal(t, "from-env", s.StorageContainerName)
	assert.Equal(t, DriverPostgres, s.Database.Driver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, s.HTTP.CORSAllowedOrigins)
	assert.Equal(t, LogLevelWarning, s.Logger.LogLevel)
	assert.Equal(t, ":8000", s.HTTP.Addr)
}

func TestLoadReadsMarshalledSettings(t *testing.T) {
	clearEnv(t)

	want := &Settings{
		Environment:                 "staging",
		KeyVaultURL:                 "https://file-vault.vault.azure.net/",
		ManagedIdentityClientID:     "00000000-0000-0000-0000-000000000001",
		StorageAccountURL:           "https://acct.blob.core.windows.net",
		StorageConnectionSecretName: "storage-conn",
		StorageContainerName:        "avatars",
		Database: DatabaseSettings{
			ConnectionSecretName: "pg-conn",
			Driver:               DriverPostgres,
			AuthMode:             AuthModeIdentity,
			TokenScope:           DefaultTokenScope,
		},
		HTTP: HTTPSettings{
			Addr:                  ":9000",
			CORSAllowedOrigins:    []string{"https://a.example", "https://b.example"},
			MaxUploadBytes:        4 << 20,
			PhotoURLExpiryMinutes: 60,
		},
		Logger: LoggerSettings{
			LogLevel:   LogLevelDebug,
			LogType:    LogTypeFile,
			FilePath:   "/var/log/userprofile.log",
			MaxSize:    20,
			MaxBackups: 5,
			MaxAge:     7,
		},
	}

	out, err := yaml.Marshal(want)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "userprofile.yaml")
	require.NoError(t, os.WriteFile(path, out, 0o600))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))

	var cfgErr dserrors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "config", cfgErr.Field)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"DB_DRIVER": "sqlite"}},
		{"unknown auth mode", map[string]string{"DB_AUTH_MODE": "kerberos"}},
		{"vault url not a url", map[string]string{"KEY_VAULT_URL": "my vault"}},
		{"expiry too long", map[string]string{"PHOTO_URL_EXPIRY_MINUTES": "5000"}},
		{"file logger without path", map[string]string{"LOG_TYPE": "file"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load("")
			var cfgErr dserrors.ConfigError
			assert.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %v", err)
		})
	}
}

func TestRequireKeyVault(t *testing.T) {
	t.Parallel()

	s := &Settings{}
	err := s.RequireKeyVault()

	var cfgErr dserrors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "key_vault_url", cfgErr.Field)

	s.KeyVaultURL = "https://v.vault.azure.net/"
	assert.NoError(t, s.RequireKeyVault())
}

func TestRequireStorage(t *testing.T) {
	t.Parallel()

	s := &Settings{}
	assert.Error(t, s.RequireStorage())

	s.StorageConnectionSecretName = "storage-conn"
	assert.NoError(t, s.RequireStorage())

	s = &Settings{StorageAccountURL: "https://acct.blob.core.windows.net"}
	assert.NoError(t, s.RequireStorage())
}

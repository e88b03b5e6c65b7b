package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	dserrors "github.com/systmms/userprofile/internal/errors"
)

// Supported database drivers
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Database authentication modes as configured. "auto" defers to the
// connection string: a password key selects password auth, otherwise the
// identity token is used.
const (
	AuthModeAuto     = "auto"
	AuthModePassword = "password"
	AuthModeIdentity = "identity"
)

// DefaultTokenScope is the Entra ID audience for Azure Database for MySQL and PostgreSQL.
const DefaultTokenScope = "https://ossrdbms-aad.database.windows.net/.default"

// Settings holds process-wide configuration resolved once at startup.
// Only secret names live here, never secret values.
type Settings struct {
	Environment string `yaml:"app_env" validate:"required"`

	KeyVaultURL             string `yaml:"key_vault_url" validate:"omitempty,url"`
	ManagedIdentityClientID string `yaml:"azure_managed_identity_client_id"`

	StorageAccountURL           string `yaml:"azure_storage_account_url" validate:"omitempty,url"`
	StorageConnectionSecretName string `yaml:"storage_connection_secret_name"`
	StorageContainerName        string `yaml:"storage_container_name" validate:"required"`

	Database DatabaseSettings `yaml:"database"`
	HTTP     HTTPSettings     `yaml:"http"`
	Logger   LoggerSettings   `yaml:"logger"`
}

// DatabaseSettings configures how the SQL engine is built.
type DatabaseSettings struct {
	ConnectionSecretName string `yaml:"sql_connection_secret_name"`
	Driver               string `yaml:"db_driver" validate:"required,oneof=mysql postgres"`
	AuthMode             string `yaml:"db_auth_mode" validate:"required,oneof=auto password identity"`
	TokenScope           string `yaml:"db_token_scope" validate:"required"`
}

// HTTPSettings configures the web server.
type HTTPSettings struct {
	Addr                  string   `yaml:"http_addr" validate:"required"`
	CORSAllowedOrigins    []string `yaml:"cors_allowed_origins"`
	MaxUploadBytes        int64    `yaml:"max_upload_bytes" validate:"min=1024"`
	PhotoURLExpiryMinutes int      `yaml:"photo_url_expiry_minutes" validate:"min=1,max=1440"`
}

// binding maps a settings key to its environment variable and default.
// Keys of nested sections are dotted, so a YAML file uses the same layout
// the config command prints.
type binding struct {
	key      string
	env      string
	fallback interface{}
}

var bindings = []binding{
	{"app_env", "APP_ENV", "development"},
	{"key_vault_url", "KEY_VAULT_URL", ""},
	{"azure_managed_identity_client_id", "AZURE_MANAGED_IDENTITY_CLIENT_ID", ""},
	{"azure_storage_account_url", "AZURE_STORAGE_ACCOUNT_URL", ""},
	{"storage_connection_secret_name", "STORAGE_CONNECTION_SECRET_NAME", ""},
	{"storage_container_name", "STORAGE_CONTAINER_NAME", "profile-image"},
	{"database.sql_connection_secret_name", "SQL_CONNECTION_SECRET_NAME", "sql-connection-string"},
	{"database.db_driver", "DB_DRIVER", DriverMySQL},
	{"database.db_auth_mode", "DB_AUTH_MODE", AuthModeAuto},
	{"database.db_token_scope", "DB_TOKEN_SCOPE", DefaultTokenScope},
	{"http.http_addr", "HTTP_ADDR", ":8000"},
	{"http.cors_allowed_origins", "CORS_ALLOWED_ORIGINS", ""},
	{"http.max_upload_bytes", "MAX_UPLOAD_BYTES", int64(10 << 20)},
	{"http.photo_url_expiry_minutes", "PHOTO_URL_EXPIRY_MINUTES", 15},
	{"logger.log_level", "LOG_LEVEL", LogLevelInfo},
	{"logger.log_type", "LOG_TYPE", LogTypeConsole},
	{"logger.log_file_path", "LOG_FILE_PATH", ""},
	{"logger.log_max_size", "LOG_MAX_SIZE", 10},
	{"logger.log_max_backups", "LOG_MAX_BACKUPS", 3},
	{"logger.log_max_age", "LOG_MAX_AGE", 28},
}

// EnvVars returns the recognised environment variable names in declaration order.
func EnvVars() []string {
	names := make([]string, 0, len(bindings))
	for _, b := range bindings {
		names = append(names, b.env)
	}
	return names
}

// Load resolves settings from defaults, an optional YAML file and the
// environment. Environment variables take precedence over the file.
func Load(path string) (*Settings, error) {
	v := viper.New()
	for _, b := range bindings {
		v.SetDefault(b.key, b.fallback)
		if err := v.BindEnv(b.key, b.env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", b.env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, dserrors.ConfigError{
				Field:      "config",
				Value:      path,
				Message:    fmt.Sprintf("failed to read configuration file: %v", err),
				Suggestion: "Check the --config path, or omit it to configure through environment variables only",
			}
		}
	}

	s := &Settings{
		Environment:                 v.GetString("app_env"),
		KeyVaultURL:                 strings.TrimSpace(v.GetString("key_vault_url")),
		ManagedIdentityClientID:     v.GetString("azure_managed_identity_client_id"),
		StorageAccountURL:           strings.TrimSpace(v.GetString("azure_storage_account_url")),
		StorageConnectionSecretName: v.GetString("storage_connection_secret_name"),
		StorageContainerName:        v.GetString("storage_container_name"),
		Database: DatabaseSettings{
			ConnectionSecretName: v.GetString("database.sql_connection_secret_name"),
			Driver:               strings.ToLower(v.GetString("database.db_driver")),
			AuthMode:             strings.ToLower(v.GetString("database.db_auth_mode")),
			TokenScope:           v.GetString("database.db_token_scope"),
		},
		HTTP: HTTPSettings{
			Addr:                  v.GetString("http.http_addr"),
			CORSAllowedOrigins:    stringList(v.Get("http.cors_allowed_origins")),
			MaxUploadBytes:        v.GetInt64("http.max_upload_bytes"),
			PhotoURLExpiryMinutes: v.GetInt("http.photo_url_expiry_minutes"),
		},
		Logger: LoggerSettings{
			LogLevel:   strings.ToLower(v.GetString("logger.log_level")),
			LogType:    strings.ToLower(v.GetString("logger.log_type")),
			FilePath:   v.GetString("logger.log_file_path"),
			MaxSize:    v.GetInt("logger.log_max_size"),
			MaxBackups: v.GetInt("logger.log_max_backups"),
			MaxAge:     v.GetInt("logger.log_max_age"),
		},
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks formats and ranges. Presence of the vault and storage
// endpoints is checked where they are first needed.
func (s *Settings) Validate() error {
	validate := validator.New()
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return dserrors.ConfigError{
				Field:   fe.Namespace(),
				Value:   fe.Value(),
				Message: fmt.Sprintf("failed '%s' validation", fe.Tag()),
			}
		}
		return fmt.Errorf("validation failed for Settings: %w", err)
	}

	if err := s.Logger.Validate(); err != nil {
		return dserrors.ConfigError{
			Field:   "logger",
			Message: err.Error(),
		}
	}
	return nil
}

// RequireKeyVault returns a ConfigError when no vault URL is configured.
func (s *Settings) RequireKeyVault() error {
	if s.KeyVaultURL == "" {
		return dserrors.ConfigError{
			Field:      "key_vault_url",
			Message:    "KEY_VAULT_URL is not configured",
			Suggestion: "Set KEY_VAULT_URL to the vault endpoint (e.g., https://my-vault.vault.azure.net/)",
		}
	}
	return nil
}

// RequireStorage returns a ConfigError when neither a storage account URL
// nor a storage connection-string secret is configured.
func (s *Settings) RequireStorage() error {
	if s.StorageAccountURL == "" && s.StorageConnectionSecretName == "" {
		return dserrors.ConfigError{
			Field:      "azure_storage_account_url",
			Message:    "AZURE_STORAGE_ACCOUNT_URL is not configured",
			Suggestion: "Set AZURE_STORAGE_ACCOUNT_URL, or STORAGE_CONNECTION_SECRET_NAME for connection-string auth",
		}
	}
	return nil
}

// stringList accepts a YAML sequence or a comma-separated string, as set
// through the environment.
func stringList(raw interface{}) []string {
	switch list := raw.(type) {
	case []string:
		return splitList(strings.Join(list, ","))
	case []interface{}:
		parts := make([]string, 0, len(list))
		for _, item := range list {
			parts = append(parts, fmt.Sprint(item))
		}
		return splitList(strings.Join(parts, ","))
	case string:
		return splitList(list)
	default:
		return nil
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

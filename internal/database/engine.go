// Package database builds the pooled SQL engine from the connection string
// held in Key Vault.
package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"strings"
	"time"

	"github.com/systmms/userprofile/internal/config"
	dserrors "github.com/systmms/userprofile/internal/errors"
	"github.com/systmms/userprofile/internal/logging"
	"github.com/systmms/userprofile/internal/metrics"
)

// Pool parameters: five idle connections with an overflow of five, recycled
// before typical server-side idle timeouts.
const (
	MaxIdleConns    = 5
	MaxOpenConns    = 10
	ConnMaxLifetime = 180 * time.Second
	ConnMaxIdleTime = 60 * time.Second
)

// SecretSource resolves named secrets.
type SecretSource interface {
	GetSecretValue(ctx context.Context, name string) (string, error)
}

// Engine is a pooled *sql.DB plus the dialect it speaks.
type Engine struct {
	db      *sql.DB
	dialect Dialect
	conn    *ConnectionConfig
	logger  *logging.Logger
}

type engineOptions struct {
	logger *logging.Logger
	open   func(driver.Connector) *sql.DB
}

// Option configures InitEngine.
type Option func(*engineOptions)

// WithLogger sets the engine's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithOpener replaces sql.OpenDB (for testing).
func WithOpener(open func(driver.Connector) *sql.DB) Option {
	return func(o *engineOptions) {
		o.open = open
	}
}

// InitEngine fetches the connection string named in settings, builds a pooled
// connection and pings it once so misconfiguration fails fast.
func InitEngine(ctx context.Context, settings config.DatabaseSettings, secrets SecretSource, tokens TokenSource, opts ...Option) (*Engine, error) {
	o := engineOptions{
		logger: logging.New(false),
		open:   sql.OpenDB,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if settings.ConnectionSecretName == "" {
		return nil, dserrors.ConfigError{
			Field:      "sql_connection_secret_name",
			Message:    "SQL_CONNECTION_SECRET_NAME is not configured",
			Suggestion: "Set SQL_CONNECTION_SECRET_NAME to the Key Vault secret holding the connection string",
		}
	}

	dialect, err := DialectFor(settings.Driver)
	if err != nil {
		return nil, dserrors.ConfigError{Field: "db_driver", Value: settings.Driver, Message: err.Error()}
	}

	start := time.Now()
	raw, err := secrets.GetSecretValue(ctx, settings.ConnectionSecretName)
	metrics.ObserveDependency("keyvault", "get_secret", start, err)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		return nil, dserrors.SecretEmptyError{Name: settings.ConnectionSecretName}
	}

	cc, err := ParseConnectionString(raw, settings.AuthMode, dialect.DefaultPort())
	if err != nil {
		return nil, err
	}

	connector, err := newConnector(dialect.Name(), &credentials{
		conn:   cc,
		tokens: tokens,
		scope:  settings.TokenScope,
	})
	if err != nil {
		return nil, dserrors.ConfigError{Field: "sql_connection_string", Message: err.Error()}
	}

	db := o.open(connector)
	configurePool(db)

	start = time.Now()
	err = db.PingContext(ctx)
	metrics.ObserveDependency("database", "ping", start, err)
	if err != nil {
		_ = db.Close()
		return nil, dserrors.Dependency("database", "connect", err)
	}

	o.logger.Info("Database engine ready (driver=%s, auth=%s, host=%s, database=%s)",
		dialect.Name(), cc.AuthMode, cc.Host, cc.Database)

	return &Engine{db: db, dialect: dialect, conn: cc, logger: o.logger}, nil
}

// NewEngine wraps an existing pool, for callers that manage their own
// connections.
func NewEngine(db *sql.DB, dialect Dialect) *Engine {
	return &Engine{db: db, dialect: dialect, logger: logging.New(false)}
}

func configurePool(db *sql.DB) {
	db.SetMaxIdleConns(MaxIdleConns)
	db.SetMaxOpenConns(MaxOpenConns)
	db.SetConnMaxLifetime(ConnMaxLifetime)
	db.SetConnMaxIdleTime(ConnMaxIdleTime)
}

// DB returns the pool.
func (e *Engine) DB() *sql.DB {
	return e.db
}

// Dialect returns the engine's dialect.
func (e *Engine) Dialect() Dialect {
	return e.dialect
}

// AuthMode returns how connections authenticate, or 0 for a wrapped pool.
func (e *Engine) AuthMode() AuthMode {
	if e.conn == nil {
		return 0
	}
	return e.conn.AuthMode
}

// Ping checks that a connection can be obtained.
func (e *Engine) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

// Stats returns pool statistics.
func (e *Engine) Stats() sql.DBStats {
	return e.db.Stats()
}

// Close releases the pool and the sealed password.
func (e *Engine) Close() error {
	if e.conn != nil && e.conn.Password != nil {
		e.conn.Password.Destroy()
	}
	return e.db.Close()
}

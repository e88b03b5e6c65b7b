package database

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/systmms/userprofile/internal/config"
)

const dialTimeout = 10 * time.Second

// TokenSource issues Entra ID access tokens for the identity path.
type TokenSource interface {
	Token(ctx context.Context, scope string) (azcore.AccessToken, error)
}

// credentials yields the password for each new physical connection: the
// embedded password, or a freshly fetched access token.
type credentials struct {
	conn   *ConnectionConfig
	tokens TokenSource
	scope  string
}

func (c *credentials) password(ctx context.Context) (string, error) {
	if c.conn.AuthMode == AuthModeIdentityToken {
		if c.tokens == nil {
			return "", fmt.Errorf("identity-token authentication needs a token source")
		}
		tok, err := c.tokens.Token(ctx, c.scope)
		if err != nil {
			return "", err
		}
		return tok.Token, nil
	}
	if c.conn.Password == nil {
		return "", nil
	}
	return c.conn.Password.String()
}

// newConnector builds the driver connector for the dialect.
func newConnector(driverName string, creds *credentials) (driver.Connector, error) {
	switch driverName {
	case config.DriverPostgres:
		return &pqConnector{creds: creds}, nil
	default:
		return newMySQLConnector(creds)
	}
}

// mysqlConfig maps a ConnectionConfig onto the driver's config. Identity
// tokens travel as cleartext passwords, which the server only accepts over TLS.
func mysqlConfig(cc *ConnectionConfig) *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = cc.User
	cfg.Net = "tcp"
	cfg.Addr = cc.Addr()
	cfg.DBName = cc.Database
	cfg.Timeout = dialTimeout
	cfg.CheckConnLiveness = true

	if cc.AuthMode == AuthModeIdentityToken {
		cfg.AllowCleartextPasswords = true
		cfg.TLSConfig = "true"
		return cfg
	}

	switch cc.SSLMode {
	case "true", "yes", "required", "require", "mandatory", "verify_identity", "verify-full":
		cfg.TLSConfig = "true"
	case "preferred", "prefer":
		cfg.TLSConfig = "preferred"
	case "skip-verify", "verify_ca", "verify-ca":
		cfg.TLSConfig = "skip-verify"
	}
	return cfg
}

func newMySQLConnector(creds *credentials) (driver.Connector, error) {
	cfg := mysqlConfig(creds.conn)
	err := cfg.Apply(mysql.BeforeConnect(func(ctx context.Context, c *mysql.Config) error {
		pw, err := creds.password(ctx)
		if err != nil {
			return err
		}
		c.Passwd = pw
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return mysql.NewConnector(cfg)
}

// pqConnector opens each lib/pq connection with a freshly resolved password.
type pqConnector struct {
	creds *credentials
}

func (c *pqConnector) Connect(ctx context.Context) (driver.Conn, error) {
	pw, err := c.creds.password(ctx)
	if err != nil {
		return nil, err
	}
	connector, err := pq.NewConnector(pqDSN(c.creds.conn, pw))
	if err != nil {
		return nil, err
	}
	return connector.Connect(ctx)
}

func (c *pqConnector) Driver() driver.Driver {
	return &pq.Driver{}
}

// pqDSN renders a key/value DSN. Values are quoted so tokens and passwords
// may contain spaces or quotes.
func pqDSN(cc *ConnectionConfig, password string) string {
	pairs := []struct{ k, v string }{
		{"host", cc.Host},
		{"port", strconv.Itoa(cc.Port)},
		{"user", cc.User},
		{"password", password},
		{"dbname", cc.Database},
		{"sslmode", pqSSLMode(cc)},
		{"connect_timeout", strconv.Itoa(int(dialTimeout.Seconds()))},
	}

	var b strings.Builder
	for _, p := range pairs {
		if p.v == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p.k)
		b.WriteString("='")
		b.WriteString(strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(p.v))
		b.WriteByte('\'')
	}
	return b.String()
}

func pqSSLMode(cc *ConnectionConfig) string {
	switch cc.SSLMode {
	case "disable", "false", "no", "optional":
		if cc.AuthMode == AuthModeIdentityToken {
			return "require"
		}
		return "disable"
	case "verify-ca", "verify-full":
		return cc.SSLMode
	default:
		return "require"
	}
}

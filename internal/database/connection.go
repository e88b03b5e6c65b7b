package database

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/systmms/userprofile/internal/config"
	"github.com/systmms/userprofile/internal/connstr"
	dserrors "github.com/systmms/userprofile/internal/errors"
	"github.com/systmms/userprofile/internal/secure"
)

// AuthMode says how a physical connection authenticates. It is decided once,
// when the connection string is parsed.
type AuthMode int

const (
	// AuthModePassword uses the password embedded in the connection string.
	AuthModePassword AuthMode = iota + 1
	// AuthModeIdentityToken sends an Entra ID access token as the password.
	AuthModeIdentityToken
)

func (m AuthMode) String() string {
	switch m {
	case AuthModePassword:
		return "password"
	case AuthModeIdentityToken:
		return "identity-token"
	default:
		return "unknown"
	}
}

// Recognised connection-string keys, in lookup order.
var (
	hostKeys     = []string{"Server", "Host", "Data Source", "Address", "Addr"}
	portKeys     = []string{"Port"}
	databaseKeys = []string{"Database", "Initial Catalog", "DBName"}
	userKeys     = []string{"Uid", "User Id", "User", "Username"}
	passwordKeys = []string{"Pwd", "Password"}
	sslModeKeys  = []string{"SslMode", "Ssl Mode", "Encrypt"}
)

// ConnectionConfig is a parsed database connection string.
type ConnectionConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	// SSLMode is the raw TLS setting from the connection string, if any.
	SSLMode string
	// Password is nil in identity-token mode.
	Password *secure.Secret
	AuthMode AuthMode
}

// Addr returns host:port.
func (c *ConnectionConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ParseConnectionString turns raw into a ConnectionConfig. mode is the
// configured DB_AUTH_MODE; "auto" selects password auth when a password key
// is present. Errors never include the raw string.
func ParseConnectionString(raw, mode string, defaultPort int) (*ConnectionConfig, error) {
	values, err := connstr.Parse(raw)
	if err != nil {
		return nil, dserrors.ConfigError{
			Field:      "sql_connection_string",
			Message:    "connection string is malformed",
			Suggestion: "Use Key=Value pairs separated by ';' (e.g., Server=host;Database=db;Uid=user;Pwd=secret)",
		}
	}

	host, port, err := splitHostPort(values.Get(hostKeys...))
	if err != nil {
		return nil, err
	}
	if host == "" {
		return nil, dserrors.ConfigError{
			Field:      "sql_connection_string",
			Message:    "connection string has no server",
			Suggestion: "Add a Server=<host> entry to the connection string secret",
		}
	}
	if p := values.Get(portKeys...); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return nil, dserrors.ConfigError{
				Field:   "sql_connection_string",
				Value:   p,
				Message: "connection string port is not a valid port number",
			}
		}
	}
	if port == 0 {
		port = defaultPort
	}

	cc := &ConnectionConfig{
		Host:     host,
		Port:     port,
		Database: values.Get(databaseKeys...),
		User:     values.Get(userKeys...),
		SSLMode:  strings.ToLower(values.Get(sslModeKeys...)),
	}

	hasPassword := values.Has(passwordKeys...)
	switch mode {
	case config.AuthModePassword:
		if !hasPassword {
			return nil, dserrors.ConfigError{
				Field:      "db_auth_mode",
				Value:      mode,
				Message:    "password authentication selected but the connection string has no password",
				Suggestion: "Add Pwd=<password> to the connection string, or set DB_AUTH_MODE=auto",
			}
		}
		cc.AuthMode = AuthModePassword
	case config.AuthModeIdentity:
		cc.AuthMode = AuthModeIdentityToken
	default:
		// A user with no password is how managed-identity connection strings
		// look, so only an explicit password key selects password auth.
		if hasPassword {
			cc.AuthMode = AuthModePassword
		} else {
			cc.AuthMode = AuthModeIdentityToken
		}
	}

	if cc.AuthMode == AuthModePassword {
		cc.Password = secure.NewSecretString(values.Get(passwordKeys...))
	}

	if cc.User == "" {
		return nil, dserrors.ConfigError{
			Field:      "sql_connection_string",
			Message:    fmt.Sprintf("connection string has no user (%s authentication)", cc.AuthMode),
			Suggestion: "Add Uid=<user>; for identity auth use the database principal mapped to the managed identity",
		}
	}

	return cc, nil
}

// splitHostPort accepts "host", "tcp:host", "host,port" and "host:port".
func splitHostPort(server string) (string, int, error) {
	server = strings.TrimSpace(server)
	server = strings.TrimPrefix(strings.TrimPrefix(server, "tcp:"), "TCP:")

	var portStr string
	if i := strings.LastIndexByte(server, ','); i >= 0 {
		server, portStr = server[:i], server[i+1:]
	} else if h, p, err := net.SplitHostPort(server); err == nil {
		server, portStr = h, p
	}

	if portStr == "" {
		return server, 0, nil
	}
	port, err := strconv.Atoi(strings.TrimSpace(portStr))
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, dserrors.ConfigError{
			Field:   "sql_connection_string",
			Value:   portStr,
			Message: "server port is not a valid port number",
		}
	}
	return strings.TrimSpace(server), port, nil
}

package database

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/systmms/userprofile/internal/config"
)

// Dialect captures the SQL differences between supported servers.
type Dialect interface {
	// Name is the DB_DRIVER value.
	Name() string
	// Placeholder returns the bind marker for the n-th argument, 1-based.
	Placeholder(n int) string
	// IsDuplicateKey reports a unique or primary key violation.
	IsDuplicateKey(err error) bool
	// DefaultPort is used when the connection string names none.
	DefaultPort() int
}

// DialectFor returns the dialect for a DB_DRIVER value.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case config.DriverMySQL, "":
		return MySQL{}, nil
	case config.DriverPostgres:
		return Postgres{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// MySQL is the go-sql-driver/mysql dialect.
type MySQL struct{}

func (MySQL) Name() string           { return config.DriverMySQL }
func (MySQL) Placeholder(int) string { return "?" }
func (MySQL) DefaultPort() int       { return 3306 }

// IsDuplicateKey matches ER_DUP_ENTRY.
func (MySQL) IsDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}

// Postgres is the lib/pq dialect.
type Postgres struct{}

func (Postgres) Name() string             { return config.DriverPostgres }
func (Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (Postgres) DefaultPort() int         { return 5432 }

// IsDuplicateKey matches SQLSTATE 23505 unique_violation.
func (Postgres) IsDuplicateKey(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

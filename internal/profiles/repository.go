package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/systmms/userprofile/internal/database"
	dserrors "github.com/systmms/userprofile/internal/errors"
	"github.com/systmms/userprofile/internal/metrics"
)

// Table is the profile table name.
const Table = "users"

const columns = "user_id, name, age, phone, address, photo_blob_name"

// Repository runs profile queries against a pooled engine.
type Repository struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewRepository returns a repository over engine.
func NewRepository(engine *database.Engine) *Repository {
	return &Repository{db: engine.DB(), dialect: engine.Dialect()}
}

// FetchUserProfile returns the profile for userID, or nil when there is none.
func (r *Repository) FetchUserProfile(ctx context.Context, userID string) (*UserProfile, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE user_id = %s LIMIT 1",
		columns, Table, r.dialect.Placeholder(1))

	var (
		p       UserProfile
		age     sql.NullInt64
		phone   sql.NullString
		address sql.NullString
		photo   sql.NullString
	)

	start := time.Now()
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&p.UserID, &p.Name, &age, &phone, &address, &photo)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.ObserveDependency("database", "fetch_profile", start, nil)
		return nil, nil
	}
	metrics.ObserveDependency("database", "fetch_profile", start, err)
	if err != nil {
		return nil, dserrors.Dependency("database", "fetch profile", err)
	}

	if age.Valid {
		v := int(age.Int64)
		p.Age = &v
	}
	p.Phone = nullString(phone)
	p.Address = nullString(address)
	p.PhotoBlobName = nullString(photo)
	return &p, nil
}

// UserExists reports whether a profile with userID is stored.
func (r *Repository) UserExists(ctx context.Context, userID string) (bool, error) {
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE user_id = %s LIMIT 1", Table, r.dialect.Placeholder(1))

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		metrics.ObserveDependency("database", "user_exists", start, err)
		return false, dserrors.Dependency("database", "check profile exists", err)
	}
	defer rows.Close()

	exists := rows.Next()
	err = rows.Err()
	metrics.ObserveDependency("database", "user_exists", start, err)
	if err != nil {
		return false, dserrors.Dependency("database", "check profile exists", err)
	}
	return exists, nil
}

// InsertUserProfile stores a new profile. A duplicate user_id yields a
// ConflictError; the existing row is left untouched.
func (r *Repository) InsertUserProfile(ctx context.Context, p *UserProfile) error {
	marks := make([]string, 6)
	for i := range marks {
		marks[i] = r.dialect.Placeholder(i + 1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", Table, columns, strings.Join(marks, ", "))

	var age interface{}
	if p.Age != nil {
		age = int64(*p.Age)
	}

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		p.UserID, p.Name, age, stringArg(p.Phone), stringArg(p.Address), stringArg(p.PhotoBlobName))
	metrics.ObserveDependency("database", "insert_profile", start, err)
	if err != nil {
		if r.dialect.IsDuplicateKey(err) {
			return dserrors.ConflictError{Resource: "user", ID: p.UserID, Err: err}
		}
		return dserrors.Dependency("database", "insert profile", err)
	}
	return nil
}

// Migrate creates the users table when it does not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    user_id VARCHAR(128) NOT NULL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    age INT NULL,
    phone VARCHAR(64) NULL,
    address VARCHAR(512) NULL,
    photo_blob_name VARCHAR(1024) NULL
)`, Table)

	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return dserrors.Dependency("database", "create users table", err)
	}
	return nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func stringArg(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

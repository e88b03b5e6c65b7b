package profiles

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/userprofile/internal/database"
	dserrors "github.com/systmms/userprofile/internal/errors"
)

func ptr[T any](v T) *T { return &v }

func newMockRepo(t *testing.T, dialect database.Dialect) (*Repository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewRepository(database.NewEngine(db, dialect)), mock
}

var profileColumns = []string{"user_id", "name", "age", "phone", "address", "photo_blob_name"}

func TestFetchUserProfileNotFound(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t, database.MySQL{})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id, name, age, phone, address, photo_blob_name FROM users WHERE user_id = ? LIMIT 1")).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows(profileColumns))

	p, err := repo.FetchUserProfile(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchUserProfileMapsColumns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		row      []driver.Value
		expected *UserProfile
	}{
		{
			name: "all fields",
			row:  []driver.Value{"u1", "Ada", int64(36), "555-0100", "1 Loop", "u1/me.png"},
			expected: &UserProfile{
				UserID: "u1", Name: "Ada", Age: ptr(36),
				Phone: ptr("555-0100"), Address: ptr("1 Loop"), PhotoBlobName: ptr("u1/me.png"),
			},
		},
		{
			name:     "nulls tolerated",
			row:      []driver.Value{"u2", "Bob", nil, nil, nil, nil},
			expected: &UserProfile{UserID: "u2", Name: "Bob"},
		},
		{
			name:     "age returned as text",
			row:      []driver.Value{"u3", "Cy", []byte("41"), nil, nil, nil},
			expected: &UserProfile{UserID: "u3", Name: "Cy", Age: ptr(41)},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo, mock := newMockRepo(t, database.MySQL{})
			mock.ExpectQuery("SELECT .* FROM users WHERE user_id = \\? LIMIT 1").
				WithArgs(tt.expected.UserID).
				WillReturnRows(sqlmock.NewRows(profileColumns).AddRow(tt.row...))

			p, err := repo.FetchUserProfile(context.Background(), tt.expected.UserID)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, p)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestFetchUserProfileFailure(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t, database.MySQL{})
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection reset"))

	_, err := repo.FetchUserProfile(context.Background(), "u1")

	var dep dserrors.DependencyError
	require.True(t, errors.As(err, &dep))
	assert.Equal(t, "database", dep.Service)
}

func TestUserExists(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t, database.Postgres{})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM users WHERE user_id = $1 LIMIT 1")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM users WHERE user_id = $1 LIMIT 1")).
		WithArgs("u2").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	exists, err := repo.UserExists(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.UserExists(context.Background(), "u2")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserExistsClosesRowsOnError(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t, database.MySQL{})
	mock.ExpectQuery("SELECT 1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1).RowError(0, errors.New("read failed")).CloseError(nil))

	_, err := repo.UserExists(context.Background(), "u1")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertUserProfile(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t, database.MySQL{})
	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO users (user_id, name, age, phone, address, photo_blob_name) VALUES (?, ?, ?, ?, ?, ?)")).
		WithArgs("u1", "Ada", int64(36), nil, "1 Loop", "u1/me.png").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.InsertUserProfile(context.Background(), &UserProfile{
		UserID: "u1", Name: "Ada", Age: ptr(36), Address: ptr("1 Loop"), PhotoBlobName: ptr("u1/me.png"),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertUserProfileDuplicate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		dialect database.Dialect
		dupErr  error
	}{
		{"mysql", database.MySQL{}, &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'u1' for key 'PRIMARY'"}},
		{"postgres", database.Postgres{}, &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo, mock := newMockRepo(t, tt.dialect)
			mock.ExpectExec("INSERT INTO users").WillReturnError(tt.dupErr)

			err := repo.InsertUserProfile(context.Background(), &UserProfile{UserID: "u1", Name: "Again"})

			var conflict dserrors.ConflictError
			require.True(t, errors.As(err, &conflict))
			assert.Equal(t, "u1", conflict.ID)
			assert.True(t, dserrors.IsConflict(err))
		})
	}
}

func TestInsertUserProfileFailure(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t, database.MySQL{})
	mock.ExpectExec("INSERT INTO users").WillReturnError(&mysql.MySQLError{Number: 1146, Message: "Table 'users' doesn't exist"})

	err := repo.InsertUserProfile(context.Background(), &UserProfile{UserID: "u1", Name: "Ada"})

	var dep dserrors.DependencyError
	require.True(t, errors.As(err, &dep))
	assert.False(t, dserrors.IsConflict(err))
	assert.Equal(t, "Run 'userprofile migrate' to create the users table", dserrors.Suggestion("database", err))
}

func TestMigrate(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t, database.MySQL{})
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS users (")).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasPhoto(t *testing.T) {
	t.Parallel()

	assert.False(t, (&UserProfile{}).HasPhoto())
	assert.False(t, (&UserProfile{PhotoBlobName: ptr("")}).HasPhoto())
	assert.True(t, (&UserProfile{PhotoBlobName: ptr("u/p.png")}).HasPhoto())
}

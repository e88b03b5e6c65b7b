package profiles_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/userprofile/internal/config"
	"github.com/systmms/userprofile/internal/database"
	dserrors "github.com/systmms/userprofile/internal/errors"
	"github.com/systmms/userprofile/internal/fakes"
	"github.com/systmms/userprofile/internal/identity"
	"github.com/systmms/userprofile/internal/profiles"
	"github.com/systmms/userprofile/internal/secrets"
	"github.com/systmms/userprofile/internal/testutil"
)

func TestRepositoryAgainstRealDatabases(t *testing.T) {
	env := testutil.StartDockerEnv(t, "mysql", "postgres")

	tests := []struct {
		driver string
		conn   string
	}{
		{config.DriverMySQL, env.MySQLConnectionString()},
		{config.DriverPostgres, env.PostgresConnectionString()},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.driver, func(t *testing.T) {
			ctx := context.Background()

			vault := fakes.NewKeyVault()
			vault.SetSecret("sql-connection-string", tt.conn)
			provider := identity.NewProvider(identity.WithCredential(fakes.NewCredential("unused")))
			resolver := secrets.NewResolver("https://v.vault.azure.net/", provider, secrets.WithClient(vault))

			engine, err := database.InitEngine(ctx, config.DatabaseSettings{
				ConnectionSecretName: "sql-connection-string",
				Driver:               tt.driver,
				AuthMode:             config.AuthModeAuto,
				TokenScope:           config.DefaultTokenScope,
			}, resolver, provider)
			require.NoError(t, err)
			defer engine.Close()
			assert.Equal(t, database.AuthModePassword, engine.AuthMode())

			repo := profiles.NewRepository(engine)
			require.NoError(t, repo.Migrate(ctx))
			require.NoError(t, repo.Migrate(ctx))

			missing, err := repo.FetchUserProfile(ctx, "nobody")
			require.NoError(t, err)
			assert.Nil(t, missing)

			age := 30
			photo := "u1/me.png"
			require.NoError(t, repo.InsertUserProfile(ctx, &profiles.UserProfile{
				UserID: "u1", Name: "Ann", Age: &age, PhotoBlobName: &photo,
			}))

			got, err := repo.FetchUserProfile(ctx, "u1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "Ann", got.Name)
			require.NotNil(t, got.Age)
			assert.Equal(t, 30, *got.Age)
			assert.Nil(t, got.Phone)
			assert.True(t, got.HasPhoto())

			exists, err := repo.UserExists(ctx, "u1")
			require.NoError(t, err)
			assert.True(t, exists)

			err = repo.InsertUserProfile(ctx, &profiles.UserProfile{UserID: "u1", Name: "Other"})
			assert.True(t, dserrors.IsConflict(err), "expected conflict, got %v", err)
		})
	}
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	dserrors "github.com/systmms/userprofile/internal/errors"
	"github.com/systmms/userprofile/internal/profiles"
)

// NewMigrateCommand creates the users table and the photo container.
func NewMigrateCommand(rt *Runtime) *cobra.Command {
	var skipStorage bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the users table and the photo container if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := rt.Services()
			if err != nil {
				return err
			}
			defer func() { _ = services.Close() }()

			ctx := contextOf(cmd)
			out := cmd.OutOrStdout()

			engine, err := services.Engine(ctx)
			if err != nil {
				return explain("database", "Failed to connect to the database", err)
			}
			if err := profiles.NewRepository(engine).Migrate(ctx); err != nil {
				return explain("database", "Failed to create the users table", err)
			}
			_, _ = fmt.Fprintf(out, "✓ Table %s ready (%s)\n", profiles.Table, engine.Dialect().Name())

			if skipStorage {
				return nil
			}
			photos, err := services.Photos(ctx)
			if err != nil {
				return explain("blob", "Failed to open blob storage", err)
			}
			if err := photos.EnsureContainer(ctx); err != nil {
				return explain("blob", "Failed to create the photo container", err)
			}
			_, _ = fmt.Fprintf(out, "✓ Container %s ready\n", photos.Container())
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipStorage, "skip-storage", false, "Only migrate the database")
	return cmd
}

// explain turns a backend failure into an operator-facing error.
func explain(service, message string, err error) error {
	return dserrors.UserError{
		Message:    message,
		Details:    err.Error(),
		Suggestion: dserrors.Suggestion(service, err),
		Err:        err,
	}
}

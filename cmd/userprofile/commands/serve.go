package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/systmms/userprofile/internal/server"
)

// NewServeCommand starts the web server.
func NewServeCommand(rt *Runtime) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the profile pages and API",
		Long: `Start the HTTP server. Database and blob clients are created on the
first request that needs them, so the server starts even when a backend is
down; /readyz reports database readiness.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				settings, err := rt.LoadSettings()
				if err != nil {
					return err
				}
				settings.HTTP.Addr = addr
			}

			services, err := rt.Services()
			if err != nil {
				return err
			}
			defer func() {
				if err := services.Close(); err != nil {
					services.Logger().Warn("Closing database pool: %v", err)
				}
			}()

			srv, err := server.New(services)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides HTTP_ADDR)")
	return cmd
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

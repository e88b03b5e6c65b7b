package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/systmms/userprofile/internal/app"
	"github.com/systmms/userprofile/internal/connstr"
	dserrors "github.com/systmms/userprofile/internal/errors"
	"github.com/systmms/userprofile/internal/logging"
)

const checkTimeout = 15 * time.Second

// sensitiveKeys are connection-string keys whose values are never printed.
var sensitiveKeys = []string{"pwd", "password", "accountkey"}

// CheckResult is the outcome of one dependency check.
type CheckResult struct {
	Name       string
	Target     string
	Healthy    bool
	Message    string
	Suggestion string
	Detail     string
}

// NewDoctorCommand checks Key Vault, database and blob connectivity.
func NewDoctorCommand(rt *Runtime) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check Key Vault, database and blob storage connectivity",
		Long: `Verify that the configured backends are reachable with the current
identity.

This command checks:
- Key Vault access to the database connection secret
- Database connectivity and pool health
- Blob container listing

With --verbose the database row also shows the connection string with
its credentials redacted. Secret values are never printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := rt.Services()
			if err != nil {
				return err
			}
			defer func() { _ = services.Close() }()

			results := runChecks(contextOf(cmd), services)
			out := cmd.OutOrStdout()
			displayResults(out, results, verbose)

			healthy := 0
			for _, r := range results {
				if r.Healthy {
					healthy++
				}
			}
			_, _ = fmt.Fprintf(out, "\nSummary: %d/%d checks healthy\n", healthy, len(results))
			if healthy < len(results) {
				return fmt.Errorf("some checks are not healthy")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&verbose, "verbose", false, "Show connection details and suggestions for failing checks")
	return cmd
}

func runChecks(ctx context.Context, services *app.Services) []CheckResult {
	settings := services.Settings()
	var conn connstr.Values

	results := make([]CheckResult, 0, 3)
	results = append(results,
		check(ctx, "keyvault", settings.KeyVaultURL, func(ctx context.Context) (string, error) {
			if err := settings.RequireKeyVault(); err != nil {
				return "", err
			}
			name := settings.Database.ConnectionSecretName
			raw, err := services.Secrets().GetSecretValue(ctx, name)
			if err != nil {
				return "", err
			}
			if values, err := connstr.Parse(raw); err == nil {
				conn = values
			}
			return fmt.Sprintf("secret %s readable", name), nil
		}),
		check(ctx, "database", settings.Database.Driver, func(ctx context.Context) (string, error) {
			result, err := services.CheckDatabase(ctx)
			if err != nil {
				return "", err
			}
			if !result.Healthy {
				return "", fmt.Errorf("%s", result.Message)
			}
			return result.Message, nil
		}),
		check(ctx, "blob", settings.StorageContainerName, func(ctx context.Context) (string, error) {
			photos, err := services.Photos(ctx)
			if err != nil {
				return "", err
			}
			names, err := photos.ListBlobNames(ctx, "")
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d blobs listed", len(names)), nil
		}),
	)

	if conn == nil {
		return results
	}

	// Driver errors can echo the credentials they were given.
	var secrets []string
	for _, key := range sensitiveKeys {
		if v, ok := conn.Lookup(key); ok {
			secrets = append(secrets, v)
		}
	}
	for i := range results {
		results[i].Message = logging.Redact(results[i].Message, secrets)
		if results[i].Name == "database" {
			results[i].Detail = conn.Redacted(sensitiveKeys...)
		}
	}
	return results
}

func check(ctx context.Context, name, target string, fn func(context.Context) (string, error)) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	result := CheckResult{Name: name, Target: target}
	msg, err := fn(ctx)
	if err != nil {
		// Suggestions are shown separately with --verbose.
		result.Message = strings.SplitN(err.Error(), "\n", 2)[0]
		result.Suggestion = dserrors.Suggestion(name, err)
		return result
	}
	result.Healthy = true
	result.Message = msg
	return result
}

func displayResults(out io.Writer, results []CheckResult, verbose bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "CHECK\tTARGET\tSTATUS\tMESSAGE\n")
	_, _ = fmt.Fprintf(w, "-----\t------\t------\t-------\n")

	for _, r := range results {
		status := "✗ error"
		if r.Healthy {
			status = "✓ healthy"
		}
		target := r.Target
		if target == "" {
			target = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, target, status, r.Message)
	}
	_ = w.Flush()

	if !verbose {
		return
	}
	for _, r := range results {
		if r.Detail != "" {
			_, _ = fmt.Fprintf(out, "\n%s connection:\n  %s\n", r.Name, r.Detail)
		}
		if !r.Healthy && r.Suggestion != "" {
			_, _ = fmt.Fprintf(out, "\n%s suggestion:\n  • %s\n", r.Name, r.Suggestion)
		}
	}
}

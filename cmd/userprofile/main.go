package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
	"github.com/systmms/userprofile/cmd/userprofile/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Wipe every enclave before exit, including on error paths.
	defer memguard.Purge()

	rt := &commands.Runtime{}

	rootCmd := &cobra.Command{
		Use:   "userprofile",
		Short: "User profile web application",
		Long: `userprofile serves profile pages backed by a SQL database and
Azure Blob Storage, with credentials resolved from Azure Key Vault.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&rt.ConfigPath, "config", "", "Optional YAML config file; environment variables take precedence")
	rootCmd.PersistentFlags().BoolVar(&rt.Debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewServeCommand(rt),
		commands.NewMigrateCommand(rt),
		commands.NewDoctorCommand(rt),
		commands.NewConfigCommand(rt),
		commands.NewCompletionCommand(rt),
	)

	return rootCmd.Execute()
}

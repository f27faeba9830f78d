package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sajang-ai/backend/internal/config"
	"github.com/sajang-ai/backend/internal/store"
)

var downSteps int

// NewMigrateCommand groups the Postgres migration subcommands.
func NewMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back Postgres schema migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrateUp,
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrateDown,
	}
	downCmd.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the applied migration version",
		Args:  cobra.NoArgs,
		RunE:  runMigrateVersion,
	}

	migrateCmd.AddCommand(upCmd, downCmd, versionCmd)
	return migrateCmd
}

func postgresURL() (string, error) {
	db, err := resolveDatabase()
	if err != nil {
		return "", err
	}
	if db.Driver != config.DriverPostgres {
		return "", fmt.Errorf("migrations apply to postgres only; %s schemas are created on open", db.Driver)
	}
	return db.URL, nil
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	url, err := postgresURL()
	if err != nil {
		return err
	}
	if err := store.MigrateUp(url); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
	return nil
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	if downSteps < 1 {
		return fmt.Errorf("--steps must be at least 1")
	}
	url, err := postgresURL()
	if err != nil {
		return err
	}
	if err := store.MigrateDown(url, downSteps); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", downSteps)
	return nil
}

func runMigrateVersion(cmd *cobra.Command, args []string) error {
	url, err := postgresURL()
	if err != nil {
		return err
	}
	version, dirty, err := store.MigrationVersion(url)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", version, dirty)
	return nil
}

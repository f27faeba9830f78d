// Package commands implements dbctl, the conversation store maintenance CLI.
package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sajang-ai/backend/internal/config"
)

var (
	databaseURL    string
	databaseDriver string
)

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "dbctl",
		Short:         "Manage the conversation store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "database URL (defaults to DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&databaseDriver, "driver", "", "postgres or sqlite (defaults to DATABASE_DRIVER)")
	rootCmd.AddCommand(NewMigrateCommand())
	rootCmd.AddCommand(NewPingCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	_ = godotenv.Load()
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// resolveDatabase merges flags over the environment.
func resolveDatabase() (config.DatabaseConfig, error) {
	if databaseURL != "" {
		os.Setenv("DATABASE_URL", databaseURL)
	}
	if databaseDriver != "" {
		os.Setenv("DATABASE_DRIVER", databaseDriver)
	}
	cfg, err := config.Load()
	if err != nil {
		return config.DatabaseConfig{}, err
	}
	if cfg.Database.Driver == config.DriverMemory {
		return config.DatabaseConfig{}, fmt.Errorf("no database configured: set DATABASE_URL or --database-url")
	}
	return cfg.Database, nil
}

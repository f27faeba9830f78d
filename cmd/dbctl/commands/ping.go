package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sajang-ai/backend/internal/logging"
	"github.com/sajang-ai/backend/internal/store"
)

var pingTimeout time.Duration

// NewPingCommand checks the configured database is reachable.
func NewPingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check the configured database is reachable",
		Args:  cobra.NoArgs,
		RunE:  runPing,
	}
	cmd.Flags().DurationVar(&pingTimeout, "timeout", 5*time.Second, "connection timeout")
	return cmd
}

func runPing(cmd *cobra.Command, args []string) error {
	db, err := resolveDatabase()
	if err != nil {
		return err
	}
	// Opening must not migrate; ping is read-only.
	db.Migrate = false

	ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
	defer cancel()

	repo, err := store.Open(ctx, db, logging.Discard())
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.Ping(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", db.Driver, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s ok\n", db.Driver)
	return nil
}

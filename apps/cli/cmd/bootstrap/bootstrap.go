package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/folio-erp/folio/platform/go/persistence"
)

// Command groups database setup helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Prepare the ISBN pool database",
	}
	cmd.AddCommand(schemaCommand())
	return cmd
}

func schemaCommand() *cobra.Command {
	var (
		databaseURL string
		schema      string
		timeout     time.Duration
	)

	c := &cobra.Command{
		Use:   "schema",
		Short: "Create the pool schema, tables and indexes; safe to rerun",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, cancel := context.WithTimeout(parent, timeout)
			defer cancel()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
				ConnString:      databaseURL,
				ApplicationName: "folio-cli",
				MaxConns:        1,
			})
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer persistence.ClosePool(pool)

			if err := persistence.BootstrapSchema(ctx, pool, schema); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "schema %q ready\n", schema)
			return nil
		},
	}

	flags := c.Flags()
	flags.StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection string")
	flags.StringVar(&schema, "schema", "folio", "schema holding the pool tables")
	flags.DurationVar(&timeout, "timeout", time.Minute, "give up after this long")

	return c
}

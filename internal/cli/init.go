package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/warden/internal/db"
	"github.com/example/warden/internal/wire"
)

// InitCmd returns the init command.
func InitCmd() *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database and optionally seed demo work items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(func(ctx context.Context, c *wire.Container) error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "✓ Database ready at %s (schema v%d)\n", c.Config.Database.Path, db.LatestVersion())
				if !seed {
					return nil
				}
				if err := db.SeedDemo(c.DB, time.Now()); err != nil {
					return fmt.Errorf("failed to seed demo data (already seeded?): %w", err)
				}
				fmt.Fprintln(out, "✓ Seeded demo feedback tickets, alerts and workflow approvals")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "Insert demo work items, some already past their SLA")
	return cmd
}

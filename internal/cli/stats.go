package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/warden/internal/wire"
)

// StatsCmd returns the stats command.
func StatsCmd() *cobra.Command {
	var windowDays int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show escalation statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(func(ctx context.Context, c *wire.Container) error {
				stats, err := c.Escalations.GetStats(ctx, windowDays)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Escalations over the last %d day(s)\n", stats.WindowDays)
				fmt.Fprintf(out, "  Total:           %d\n", stats.Total)
				fmt.Fprintf(out, "  Open:            %d\n", stats.Open)
				fmt.Fprintf(out, "  In progress:     %d\n", stats.InProgress)
				fmt.Fprintf(out, "  Critical active: %d\n", stats.CriticalOpen)
				fmt.Fprintf(out, "  Last 24h:        %d\n", stats.Last24h)
				fmt.Fprintf(out, "  Mean resolution: %.1f min\n", stats.MeanResolutionMinutes)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&windowDays, "window-days", "w", 7, "Window in days")
	return cmd
}

package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/warden/internal/ports/primary"
	"github.com/example/warden/internal/wire"
)

// CheckCmd returns the check command.
func CheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run one monitor pass now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(func(ctx context.Context, c *wire.Container) error {
				result, err := c.Monitor.ForceCheckNow(ctx)
				if err != nil {
					return fmt.Errorf("check failed: %w", err)
				}
				printPass(cmd.OutOrStdout(), result)
				if result.Failed() {
					return fmt.Errorf("pass completed with errors")
				}
				return nil
			})
		},
	}
}

func printPass(out io.Writer, result *primary.PassResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCANNER\tCANDIDATES\tESCALATED\tSKIPPED\tSTATUS")
	for _, s := range result.Scans {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", s.Scanner, s.Candidates, s.Escalated, s.Skipped, scanGlyph(s))
	}
	w.Flush()

	for _, s := range result.Scans {
		if s.Error != "" {
			fmt.Fprintf(out, "%s %s: %s\n", color.New(color.FgRed).Sprint("✗"), s.Scanner, s.Error)
		}
		for _, e := range s.ItemErrors {
			fmt.Fprintf(out, "%s %s: %s\n", color.New(color.FgYellow).Sprint("!"), s.Scanner, e)
		}
	}
	fmt.Fprintf(out, "\n%d escalation(s) in %dms\n", result.Escalated(), result.DurationMs)
}

func scanGlyph(s *primary.ScanResult) string {
	switch {
	case s.Error != "":
		return color.New(color.FgRed).Sprint("FAILED")
	case len(s.ItemErrors) > 0:
		return color.New(color.FgYellow).Sprintf("%d ITEM ERROR(S)", len(s.ItemErrors))
	default:
		return color.New(color.FgGreen).Sprint("OK")
	}
}

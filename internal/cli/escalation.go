package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/warden/internal/ctxutil"
	"github.com/example/warden/internal/ports/primary"
	"github.com/example/warden/internal/wire"
)

const timeFormat = "2006-01-02 15:04"

func escalationListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List escalations",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			class, _ := cmd.Flags().GetString("class")
			priority, _ := cmd.Flags().GetString("priority")
			item, _ := cmd.Flags().GetString("item")
			limit, _ := cmd.Flags().GetInt("limit")

			return runOnce(func(ctx context.Context, c *wire.Container) error {
				list, err := c.Escalations.ListEscalations(ctx, primary.EscalationFilters{
					WorkItemClass: class,
					WorkItemID:    item,
					Status:        status,
					Priority:      priority,
					Limit:         limit,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No escalations found.")
					return nil
				}

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tITEM\tLEVEL\tPRIORITY\tSTATUS\tASSIGNED\tCREATED")
				fmt.Fprintln(w, "--\t----\t-----\t--------\t------\t--------\t-------")
				for _, e := range list {
					fmt.Fprintf(w, "%s\t%s/%s\t%d\t%s\t%s\t%s\t%s\n",
						e.ID, e.WorkItemClass, e.WorkItemID, e.Level, e.Priority,
						statusLabel(e.Status), describeAssignee(e), e.CreatedAt.Local().Format(timeFormat))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringP("status", "s", "", "Filter by status (open|in_progress|escalated|resolved)")
	cmd.Flags().StringP("class", "c", "", "Filter by work item class")
	cmd.Flags().StringP("priority", "p", "", "Filter by priority")
	cmd.Flags().String("item", "", "Filter by work item id")
	cmd.Flags().IntP("limit", "n", 50, "Maximum rows")
	return cmd
}

func escalationShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [escalation-id]",
		Short: "Show escalation details and activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(func(ctx context.Context, c *wire.Container) error {
				e, err := c.Escalations.GetEscalation(ctx, args[0])
				if err != nil {
					return err
				}
				activity, err := c.Escalations.ListActivity(ctx, e.ID)
				if err != nil {
					return err
				}
				printEscalation(cmd.OutOrStdout(), e, activity)
				return nil
			})
		},
	}
}

func escalationChainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chain [escalation-id]",
		Short: "Show the escalation chain from level 1",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(func(ctx context.Context, c *wire.Container) error {
				chain, err := c.Escalations.GetChain(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for i, e := range chain {
					indent := ""
					for j := 0; j < i; j++ {
						indent += "  "
					}
					manual := ""
					if e.Manual {
						manual = " [manual by " + e.CreatedBy + "]"
					}
					fmt.Fprintf(out, "%sL%d %s %s -> %s%s\n", indent, e.Level, e.ID, statusLabel(e.Status), describeAssignee(e), manual)
				}
				return nil
			})
		},
	}
}

func escalationStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start [escalation-id]",
		Short: "Mark an open escalation in progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(func(ctx context.Context, c *wire.Container) error {
				if err := c.Escalations.StartEscalation(ctx, args[0], ctxutil.ActorFromContext(ctx)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Escalation %s in progress\n", args[0])
				return nil
			})
		},
	}
}

func escalationResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve [escalation-id]",
		Short: "Resolve an active escalation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolution, _ := cmd.Flags().GetString("resolution")
			if resolution == "" {
				return fmt.Errorf("--resolution is required")
			}
			return runOnce(func(ctx context.Context, c *wire.Container) error {
				err := c.Escalations.ResolveEscalation(ctx, primary.ResolveEscalationRequest{
					EscalationID: args[0],
					Resolution:   resolution,
					ResolvedBy:   ctxutil.ActorFromContext(ctx),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Escalation %s resolved\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringP("resolution", "r", "", "How the escalation was resolved (required)")
	return cmd
}

// EscalationCmd returns the escalation command
func EscalationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "escalation",
		Short: "Inspect and work escalations",
	}
	cmd.AddCommand(escalationListCmd())
	cmd.AddCommand(escalationShowCmd())
	cmd.AddCommand(escalationChainCmd())
	cmd.AddCommand(escalationStartCmd())
	cmd.AddCommand(escalationResolveCmd())
	return cmd
}

func statusLabel(status string) string {
	switch status {
	case "open":
		return color.New(color.FgRed).Sprint(status)
	case "in_progress":
		return color.New(color.FgYellow).Sprint(status)
	case "resolved":
		return color.New(color.FgGreen).Sprint(status)
	default:
		return color.New(color.FgBlue).Sprint(status)
	}
}

func printEscalation(out io.Writer, e *primary.Escalation, activity []*primary.ActivityEntry) {
	fmt.Fprintf(out, "Escalation: %s\n", e.ID)
	fmt.Fprintf(out, "Work item: %s %s\n", e.WorkItemClass, e.WorkItemID)
	fmt.Fprintf(out, "Level: %d\n", e.Level)
	fmt.Fprintf(out, "Priority: %s\n", e.Priority)
	if e.Category != "" {
		fmt.Fprintf(out, "Category: %s\n", e.Category)
	}
	fmt.Fprintf(out, "Status: %s\n", statusLabel(e.Status))
	fmt.Fprintf(out, "Assigned: %s\n", describeAssignee(e))
	fmt.Fprintf(out, "Reason: %s\n", e.Reason)
	fmt.Fprintf(out, "Created by: %s\n", e.CreatedBy)
	if e.ParentEscalationID != "" {
		fmt.Fprintf(out, "Follows: %s\n", e.ParentEscalationID)
	}
	if e.EscalatedToEscalationID != "" {
		fmt.Fprintf(out, "Superseded by: %s\n", e.EscalatedToEscalationID)
	}
	if e.Resolution != "" {
		fmt.Fprintf(out, "Resolution: %s (by %s)\n", e.Resolution, e.ResolvedBy)
	}
	fmt.Fprintf(out, "Created: %s\n", e.CreatedAt.Local().Format(timeFormat))
	if e.ResolvedAt != nil {
		fmt.Fprintf(out, "Resolved: %s\n", e.ResolvedAt.Local().Format(timeFormat))
	}

	if len(activity) > 0 {
		fmt.Fprintln(out, "\nActivity:")
		for _, a := range activity {
			fmt.Fprintf(out, "  %s  %-18s %-10s %s\n", a.CreatedAt.Local().Format(time.DateTime), a.ActivityType, a.Actor, a.Description)
		}
	}
}

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/warden/internal/core/escalation"
	"github.com/example/warden/internal/ctxutil"
	"github.com/example/warden/internal/ports/primary"
	"github.com/example/warden/internal/wire"
)

// EscalateCmd returns the manual escalation command.
func EscalateCmd() *cobra.Command {
	var reason, role, user string

	cmd := &cobra.Command{
		Use:   "escalate [class] [work-item-id]",
		Short: "Manually escalate a work item",
		Long: `Escalate a work item on behalf of the current actor. Manual escalations go one
level above the highest level the item has reached and have no ceiling.

Classes: feedback, alert, workflow_approval`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			class, err := escalation.ParseItemClass(args[0])
			if err != nil {
				return err
			}
			if reason == "" {
				return fmt.Errorf("--reason is required")
			}

			return runOnce(func(ctx context.Context, c *wire.Container) error {
				e, err := c.Escalations.CreateManualEscalation(ctx, primary.ManualEscalationRequest{
					WorkItemClass: string(class),
					WorkItemID:    args[1],
					Reason:        reason,
					ActorID:       ctxutil.ActorFromContext(ctx),
					TargetRole:    role,
					TargetUser:    user,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Escalated %s %s to level %d: %s (%s)\n",
					e.WorkItemClass, e.WorkItemID, e.Level, describeAssignee(e), e.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Why the item is being escalated (required)")
	cmd.Flags().StringVar(&role, "role", "", "Override the target role")
	cmd.Flags().StringVar(&user, "user", "", "Assign a specific user")
	return cmd
}

func describeAssignee(e *primary.Escalation) string {
	if e.EscalatedToUser != "" {
		return fmt.Sprintf("%s (%s)", e.EscalatedToRole, e.EscalatedToUser)
	}
	return e.EscalatedToRole
}

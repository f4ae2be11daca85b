// Package cli provides the warden command line.
package cli

import (
	gocontext "context"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/example/warden/internal/ctxutil"
	"github.com/example/warden/internal/version"
	"github.com/example/warden/internal/wire"
)

// globalActorID is the user on whose behalf mutating commands run.
var globalActorID string

// DetectActor resolves the actor from --actor, $WARDEN_ACTOR or the OS user.
func DetectActor(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("WARDEN_ACTOR"); env != "" {
		return env
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return ""
}

// NewContext creates a background context carrying the current actor.
func NewContext() gocontext.Context {
	ctx := gocontext.Background()
	if globalActorID != "" {
		return ctxutil.WithActorID(ctx, globalActorID)
	}
	return ctx
}

// NewRootCmd builds the warden command tree.
func NewRootCmd() *cobra.Command {
	var configPath, actor string

	root := &cobra.Command{
		Use:     "warden",
		Short:   "Warden - SLA monitoring and escalation engine",
		Version: version.String(),
		Long: `Warden watches feedback tickets, security alerts and workflow approvals
against their SLA budgets and escalates breaches through a multi-level chain.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			wire.SetConfigPath(configPath)
			globalActorID = DetectActor(actor)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ./warden.yaml or ~/.warden/warden.yaml)")
	root.PersistentFlags().StringVar(&actor, "actor", "", "Actor for manual actions (default $WARDEN_ACTOR or the OS user)")

	root.AddCommand(ServeCmd())
	root.AddCommand(CheckCmd())
	root.AddCommand(StatusCmd())
	root.AddCommand(StatsCmd())
	root.AddCommand(EscalateCmd())
	root.AddCommand(EscalationCmd())
	root.AddCommand(ConfigCmd())
	root.AddCommand(InitCmd())
	return root
}

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/warden/internal/api"
	"github.com/example/warden/internal/wire"
)

// ServeCmd returns the serve command.
func ServeCmd() *cobra.Command {
	var noMonitor bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor, notification relay and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := wire.Default()
			defer c.Close()

			ctx, stop := signal.NotifyContext(NewContext(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !noMonitor {
				c.Monitor.StartMonitoring(ctx)
			}
			go c.Relay.Run(ctx)

			server := api.NewServer(c.Logger.Named("http"), c.Monitor, c.Escalations, c.Config.Log.Development)
			err := server.ListenAndServe(ctx, c.Config.Server.ListenAddress)
			c.Monitor.StopMonitoring()
			if err != nil && ctx.Err() == nil {
				return err
			}
			c.Logger.Sugar().Infow("shutdown complete")
			return nil
		},
	}
	cmd.Flags().BoolVar(&noMonitor, "no-monitor", false, "Start with the monitor stopped (start it via the API)")
	return cmd
}

// runOnce is shared by commands that need the services for a single call.
func runOnce(fn func(ctx context.Context, c *wire.Container) error) error {
	return fn(NewContext(), wire.Default())
}

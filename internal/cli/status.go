package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/warden/internal/core/escalation"
	"github.com/example/warden/internal/ports/primary"
	"github.com/example/warden/internal/wire"
)

// StatusCmd returns the status command.
func StatusCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show monitor status and active escalations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(func(ctx context.Context, c *wire.Container) error {
				out := cmd.OutOrStdout()
				if server == "" {
					server = localURL(c.Config.Server.ListenAddress)
				}

				status, err := fetchMonitorStatus(ctx, server)
				if err != nil {
					fmt.Fprintf(out, "Monitor: %s (%v)\n", color.New(color.FgYellow).Sprint("unreachable"), err)
				} else {
					printMonitorStatus(out, status)
				}

				return printActive(ctx, out, c.Escalations)
			})
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "Base URL of a running warden serve (default from server.listen_address)")
	return cmd
}

func localURL(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "http://localhost" + listen
	}
	return "http://" + listen
}

func fetchMonitorStatus(ctx context.Context, base string) (*primary.MonitorStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(base, "/")+"/api/monitor", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var status primary.MonitorStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode monitor status: %w", err)
	}
	return &status, nil
}

func printMonitorStatus(out io.Writer, s *primary.MonitorStatus) {
	state := color.New(color.FgRed).Sprint("stopped")
	if s.Running {
		state = color.New(color.FgGreen).Sprint("running")
	}
	fmt.Fprintf(out, "Monitor: %s (every %s)\n", state, time.Duration(s.IntervalMs)*time.Millisecond)
	if s.Stats.Passes > 0 {
		fmt.Fprintf(out, "  Passes: %d, last at %s (%dms)\n", s.Stats.Passes, s.Stats.LastPassAt.Format(time.RFC3339), s.Stats.LastPassDurationMs)
		fmt.Fprintf(out, "  Escalations created: %d, re-escalations: %d\n", s.Stats.EscalationsCreated, s.Stats.Reescalations)
		if s.Stats.ScanErrors > 0 || s.Stats.ItemErrors > 0 {
			fmt.Fprintf(out, "  %s scan errors: %d, item errors: %d\n", color.New(color.FgYellow).Sprint("!"), s.Stats.ScanErrors, s.Stats.ItemErrors)
		}
	}
}

func printActive(ctx context.Context, out io.Writer, svc primary.EscalationService) error {
	counts := make(map[string]int)
	total := 0
	for _, st := range escalation.ActiveStatuses() {
		list, err := svc.ListEscalations(ctx, primary.EscalationFilters{Status: string(st)})
		if err != nil {
			return fmt.Errorf("failed to list escalations: %w", err)
		}
		for _, e := range list {
			counts[e.Priority]++
			total++
		}
	}

	fmt.Fprintf(out, "\nActive escalations: %d\n", total)
	for _, p := range escalation.Priorities {
		if n := counts[string(p)]; n > 0 {
			fmt.Fprintf(out, "  %-8s %d\n", p, n)
		}
	}
	return nil
}

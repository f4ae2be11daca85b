package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/warden/internal/core/escalation"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warden.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Path != "warden.db" {
		t.Errorf("expected default database path, got %q", cfg.Database.Path)
	}
	interval, err := cfg.MonitorInterval()
	if err != nil || interval != time.Minute {
		t.Errorf("expected 1m monitor interval, got %v (%v)", interval, err)
	}
	if cfg.Monitor.MaxLevel != escalation.DefaultMaxLevel {
		t.Errorf("expected max level %d, got %d", escalation.DefaultMaxLevel, cfg.Monitor.MaxLevel)
	}

	policy, problems := cfg.Policy()
	if len(problems) > 0 {
		t.Fatalf("unexpected policy problems: %v", problems)
	}
	got, _ := policy.Budget(escalation.ClassFeedback, escalation.PriorityCritical)
	if got != 15*time.Minute {
		t.Errorf("expected 15m critical feedback budget, got %v", got)
	}

	resolver := escalation.NewResolver(cfg.Matrix())
	if target := resolver.Resolve(escalation.PriorityCritical, 3); target.Role != "CEO" {
		t.Errorf("expected CEO at critical level 3, got %q", target.Role)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
database:
  path: /var/lib/warden/warden.db
monitor:
  interval: 15s
sla:
  alert:
    critical: 2m
escalation_matrix:
  critical:
    - role: SOC On-Call
      user: pager-bot
    - role: CISO
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Path != "/var/lib/warden/warden.db" {
		t.Errorf("unexpected database path %q", cfg.Database.Path)
	}
	if d, _ := cfg.MonitorInterval(); d != 15*time.Second {
		t.Errorf("expected 15s interval, got %v", d)
	}

	policy, problems := cfg.Policy()
	if len(problems) > 0 {
		t.Fatalf("unexpected policy problems: %v", problems)
	}
	if d, _ := policy.Budget(escalation.ClassAlert, escalation.PriorityCritical); d != 2*time.Minute {
		t.Errorf("expected overridden alert budget, got %v", d)
	}
	if d, _ := policy.Budget(escalation.ClassAlert, escalation.PriorityHigh); d != 15*time.Minute {
		t.Errorf("expected default alert/high budget to survive, got %v", d)
	}

	resolver := escalation.NewResolver(cfg.Matrix())
	first := resolver.Resolve(escalation.PriorityCritical, 1)
	if first.Role != "SOC On-Call" || first.User != "pager-bot" {
		t.Errorf("unexpected level 1 target %+v", first)
	}
	if third := resolver.Resolve(escalation.PriorityCritical, 3); third.Role != escalation.FallbackRole {
		t.Errorf("expected fallback at unlisted level, got %+v", third)
	}
	if low := resolver.Resolve(escalation.PriorityLow, 1); low.Role != "Support Agent" {
		t.Errorf("expected default low matrix to survive, got %+v", low)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("WARDEN_MONITOR_INTERVAL", "5s")
	t.Setenv("WARDEN_SLA_FEEDBACK_CRITICAL", "20m")
	t.Setenv("WARDEN_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if d, _ := cfg.MonitorInterval(); d != 5*time.Second {
		t.Errorf("expected env interval, got %v", d)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug log level, got %q", cfg.Log.Level)
	}
	policy, problems := cfg.Policy()
	if len(problems) > 0 {
		t.Fatalf("unexpected policy problems: %v", problems)
	}
	if d, _ := policy.Budget(escalation.ClassFeedback, escalation.PriorityCritical); d != 20*time.Minute {
		t.Errorf("expected env budget, got %v", d)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "negative interval",
			body:    "monitor:\n  interval: -1s\n",
			wantErr: "monitor.interval: duration must be positive",
		},
		{
			name:    "zero max level",
			body:    "monitor:\n  max_level: 0\n",
			wantErr: "monitor.max_level must be at least 1",
		},
		{
			name:    "matrix deeper than max level",
			body:    "monitor:\n  max_level: 1\n",
			wantErr: "lists 3 levels, max_level is 1",
		},
		{
			name:    "matrix entry without role",
			body:    "escalation_matrix:\n  high:\n    - user: bob\n",
			wantErr: "escalation_matrix.high level 1 has no role",
		},
		{
			name:    "mail enabled without host",
			body:    "mail:\n  enabled: true\n",
			wantErr: "mail.host is required",
		},
		{
			name:    "kafka enabled without brokers",
			body:    "kafka:\n  enabled: true\n",
			wantErr: "kafka.brokers is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPolicy_SkipsBadEntries(t *testing.T) {
	isolate(t)
	cfg, err := Load(writeConfig(t, `
sla:
  feedback:
    high: soon
  alert:
    urgent: 1m
  workflow_approval:
    low: 0s
`))
	if err != nil {
		t.Fatalf("bad SLA entries must not reject the config: %v", err)
	}

	policy, problems := cfg.Policy()
	joined := strings.Join(problems, "\n")
	for _, want := range []string{
		`sla.feedback.high: invalid duration "soon"`,
		`sla.alert: unknown priority "urgent"`,
		"sla.workflow_approval.low: duration must be positive",
		"feedback/high",
		"workflow_approval/low",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected problem %q in:\n%s", want, joined)
		}
	}

	if _, err := policy.Budget(escalation.ClassFeedback, escalation.PriorityHigh); !errors.Is(err, escalation.ErrMissingPolicy) {
		t.Errorf("expected ErrMissingPolicy for the skipped entry, got %v", err)
	}
	if _, err := policy.Budget(escalation.ClassWorkflowApproval, escalation.PriorityLow); !errors.Is(err, escalation.ErrMissingPolicy) {
		t.Errorf("expected ErrMissingPolicy for the zero entry, got %v", err)
	}
	if d, err := policy.Budget(escalation.ClassFeedback, escalation.PriorityCritical); err != nil || d != 15*time.Minute {
		t.Errorf("expected untouched entries to survive, got %v (%v)", d, err)
	}
	if d, err := policy.Budget(escalation.ClassAlert, escalation.PriorityCritical); err != nil || d != 5*time.Minute {
		t.Errorf("expected alert budgets to survive an unknown key, got %v (%v)", d, err)
	}
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	isolate(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestYAML_OmitsPassword(t *testing.T) {
	cfg := Default()
	cfg.Mail.Password = "hunter2"

	out, err := cfg.YAML()
	if err != nil {
		t.Fatalf("YAML failed: %v", err)
	}
	text := string(out)
	if strings.Contains(text, "hunter2") {
		t.Error("password must not be rendered")
	}
	for _, want := range []string{"database:", "escalation_matrix:", "role: Security Officer", "reescalation:"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output:\n%s", want, text)
		}
	}
}

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config is invalid: %v", err)
	}
}

package primary

import (
	"context"
	"time"
)

// MonitorService defines the primary port for the SLA monitor loop.
type MonitorService interface {
	// StartMonitoring begins periodic passes. Starting a running monitor is a no-op.
	StartMonitoring(ctx context.Context) MonitorStatus

	// StopMonitoring prevents the next scheduled pass. A pass already running completes.
	StopMonitoring() MonitorStatus

	// GetStatus reports whether the monitor is running and its counters.
	GetStatus() MonitorStatus

	// ForceCheckNow runs one full pass synchronously.
	ForceCheckNow(ctx context.Context) (*PassResult, error)
}

// MonitorStatus is the operational view of the monitor.
type MonitorStatus struct {
	Running    bool         `json:"running"`
	IntervalMs int64        `json:"intervalMs"`
	Stats      MonitorStats `json:"stats"`
}

// MonitorStats are cumulative counters since process start.
type MonitorStats struct {
	Passes             int64     `json:"passes"`
	LastPassAt         time.Time `json:"lastPassAt"`
	LastPassDurationMs int64     `json:"lastPassDurationMs"`
	EscalationsCreated int64     `json:"escalationsCreated"`
	Reescalations      int64     `json:"reescalations"`
	ScanErrors         int64     `json:"scanErrors"`
	ItemErrors         int64     `json:"itemErrors"`
}

// PassResult summarises one monitor pass.
type PassResult struct {
	StartedAt  time.Time     `json:"startedAt"`
	DurationMs int64         `json:"durationMs"`
	Scans      []*ScanResult `json:"scans"`
}

// ScanResult summarises one scanner within a pass.
type ScanResult struct {
	Scanner    string   `json:"scanner"`
	Candidates int      `json:"candidates"`
	Escalated  int      `json:"escalated"`
	Skipped    int      `json:"skipped"`
	ItemErrors []string `json:"itemErrors,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Escalated returns the total number of escalations written in the pass.
func (r *PassResult) Escalated() int {
	total := 0
	for _, s := range r.Scans {
		total += s.Escalated
	}
	return total
}

// Failed reports whether any scanner or item failed.
func (r *PassResult) Failed() bool {
	for _, s := range r.Scans {
		if s.Error != "" || len(s.ItemErrors) > 0 {
			return true
		}
	}
	return false
}

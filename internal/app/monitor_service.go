package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/example/warden/internal/metrics"
	"github.com/example/warden/internal/ports/primary"
)

// DefaultMonitorInterval is used when no interval is configured.
const DefaultMonitorInterval = 60 * time.Second

// MonitorServiceImpl implements the MonitorService interface.
//
// Timer-driven passes run one at a time: a tick that fires while the previous
// timer pass is still running is skipped. ForceCheckNow may run concurrently
// with a timer pass; the active-escalation unique index keeps the two from
// writing duplicates.
type MonitorServiceImpl struct {
	scanners []Scanner
	interval time.Duration
	log      *zap.SugaredLogger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stop    chan struct{}

	timerPass atomic.Bool

	statsMu sync.Mutex
	stats   primary.MonitorStats
}

// NewMonitorService creates a new MonitorService running the given scanners
// in order. clock may be nil.
func NewMonitorService(scanners []Scanner, interval time.Duration, log *zap.SugaredLogger, clock func() time.Time) *MonitorServiceImpl {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	if clock == nil {
		clock = time.Now
	}
	return &MonitorServiceImpl{
		scanners: scanners,
		interval: interval,
		log:      log,
		now:      clock,
	}
}

// StartMonitoring runs a pass immediately and then one per interval.
// Passes outlive ctx cancellation; use StopMonitoring to end the loop.
func (m *MonitorServiceImpl) StartMonitoring(ctx context.Context) primary.MonitorStatus {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return m.GetStatus()
	}
	m.running = true
	m.stop = make(chan struct{})
	stop := m.stop
	m.mu.Unlock()

	passCtx := context.WithoutCancel(ctx)
	go m.loop(passCtx, stop)

	m.log.Infow("monitor started", "interval", m.interval.String())
	return m.GetStatus()
}

// StopMonitoring prevents further timer passes. A pass already running completes.
func (m *MonitorServiceImpl) StopMonitoring() primary.MonitorStatus {
	m.mu.Lock()
	if m.running {
		close(m.stop)
		m.running = false
		m.log.Infow("monitor stopped")
	}
	m.mu.Unlock()
	return m.GetStatus()
}

// GetStatus reports whether the monitor is running and its counters.
func (m *MonitorServiceImpl) GetStatus() primary.MonitorStatus {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	m.statsMu.Lock()
	stats := m.stats
	m.statsMu.Unlock()

	return primary.MonitorStatus{
		Running:    running,
		IntervalMs: m.interval.Milliseconds(),
		Stats:      stats,
	}
}

// ForceCheckNow runs one full pass synchronously.
func (m *MonitorServiceImpl) ForceCheckNow(ctx context.Context) (*primary.PassResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.runPass(ctx, "manual"), nil
}

func (m *MonitorServiceImpl) loop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.tick(ctx)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// Stop may race with the tick; never start a pass after it
			select {
			case <-stop:
				return
			default:
			}
			m.tick(ctx)
		}
	}
}

// tick starts a timer pass unless the previous one is still running.
func (m *MonitorServiceImpl) tick(ctx context.Context) {
	if !m.timerPass.CompareAndSwap(false, true) {
		metrics.MonitorPassesSkipped.Inc()
		m.log.Warnw("previous monitor pass still running; skipping tick")
		return
	}
	go func() {
		defer m.timerPass.Store(false)
		m.runPass(ctx, "timer")
	}()
}

// runPass runs every scanner in order. A failing or panicking scanner is
// logged and recorded; the remaining scanners still run.
func (m *MonitorServiceImpl) runPass(ctx context.Context, trigger string) *primary.PassResult {
	begin := time.Now()
	started := m.now()
	result := &primary.PassResult{StartedAt: started.UTC()}

	for _, sc := range m.scanners {
		res := m.runScanner(ctx, sc, started)
		result.Scans = append(result.Scans, res)
	}

	duration := time.Since(begin)
	result.DurationMs = duration.Milliseconds()
	m.recordPass(result, duration)

	metrics.MonitorPasses.WithLabelValues(trigger).Inc()
	metrics.MonitorPassDuration.Observe(duration.Seconds())
	m.log.Infow("monitor pass complete",
		"trigger", trigger,
		"escalated", result.Escalated(),
		"durationMs", result.DurationMs,
		"failed", result.Failed())
	return result
}

func (m *MonitorServiceImpl) runScanner(ctx context.Context, sc Scanner, now time.Time) (res *primary.ScanResult) {
	defer func() {
		if p := recover(); p != nil {
			res = &primary.ScanResult{Scanner: sc.Name, Error: fmt.Sprintf("panic: %v", p)}
			metrics.ScanErrors.WithLabelValues(sc.Name).Inc()
			m.log.Errorw("scanner panicked", "scanner", sc.Name, "panic", p)
		}
	}()

	res, err := sc.Scan(ctx, now)
	if res == nil {
		res = &primary.ScanResult{Scanner: sc.Name}
	}
	if err != nil {
		res.Error = err.Error()
		metrics.ScanErrors.WithLabelValues(sc.Name).Inc()
		m.log.Errorw("scanner failed", "scanner", sc.Name, "error", err)
	}
	return res
}

func (m *MonitorServiceImpl) recordPass(result *primary.PassResult, duration time.Duration) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()

	m.stats.Passes++
	m.stats.LastPassAt = result.StartedAt
	m.stats.LastPassDurationMs = duration.Milliseconds()
	for _, s := range result.Scans {
		if s.Scanner == ScannerEscalationTimeout {
			m.stats.Reescalations += int64(s.Escalated)
		} else {
			m.stats.EscalationsCreated += int64(s.Escalated)
		}
		if s.Error != "" {
			m.stats.ScanErrors++
		}
		m.stats.ItemErrors += int64(len(s.ItemErrors))
	}
}

// Ensure MonitorServiceImpl implements the interface
var _ primary.MonitorService = (*MonitorServiceImpl)(nil)

package app

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/warden/internal/adapters/sqlite"
	"github.com/example/warden/internal/core/escalation"
	"github.com/example/warden/internal/db"
	"github.com/example/warden/internal/ports/primary"
	"github.com/example/warden/internal/ports/secondary"
)

// fakeClock is a settable clock shared by the services under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// testEnv wires the real SQLite adapters to the services, the way the
// production wiring does, over an in-memory database.
type testEnv struct {
	db            *sql.DB
	clock         *fakeClock
	engine        *EscalationServiceImpl
	scanners      *ScannerService
	monitor       *MonitorServiceImpl
	escalations   *sqlite.EscalationRepository
	notifications *sqlite.NotificationRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	clock := newFakeClock()
	log := zap.NewNop().Sugar()

	feedback := sqlite.NewFeedbackRepository(database)
	alerts := sqlite.NewAlertRepository(database)
	approvals := sqlite.NewApprovalRepository(database)
	escalations := sqlite.NewEscalationRepository(database)

	engine := NewEscalationService(
		escalations,
		sqlite.NewActivityLogRepository(database),
		[]secondary.WorkItemRepository{feedback, alerts, approvals},
		sqlite.NewTransactor(database),
		escalation.NewResolver(escalation.DefaultMatrix()),
		NewNotificationDispatcher(),
		escalation.DefaultMaxLevel,
		log,
		clock.Now,
	)
	scanners := NewScannerService(feedback, alerts, approvals, escalations, engine,
		escalation.DefaultPolicy(), escalation.DefaultMaxLevel, log)

	return &testEnv{
		db:            database,
		clock:         clock,
		engine:        engine,
		scanners:      scanners,
		monitor:       NewMonitorService(scanners.Scanners(), time.Hour, log, clock.Now),
		escalations:   escalations,
		notifications: sqlite.NewNotificationRepository(database),
	}
}

func (e *testEnv) insertFeedback(t *testing.T, id, priority string, age time.Duration) *primary.WorkItem {
	t.Helper()
	createdAt := e.clock.Now().Add(-age)
	_, err := e.db.Exec(
		"INSERT INTO feedback_tickets (id, title, priority, category, status, created_at) VALUES (?, ?, ?, 'billing', 'open', ?)",
		id, "Ticket "+id, priority, db.FormatTime(createdAt))
	require.NoError(t, err)
	return &primary.WorkItem{
		Class: "feedback", ID: id, Title: "Ticket " + id, Priority: priority,
		Category: "billing", Status: "open", CreatedAt: createdAt,
	}
}

func (e *testEnv) insertAlert(t *testing.T, id, priority string, age time.Duration) {
	t.Helper()
	_, err := e.db.Exec(
		"INSERT INTO security_alerts (id, title, priority, status, created_at) VALUES (?, ?, ?, 'new', ?)",
		id, "Alert "+id, priority, db.FormatTime(e.clock.Now().Add(-age)))
	require.NoError(t, err)
}

func (e *testEnv) countRows(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow(query, args...).Scan(&n))
	return n
}

func (e *testEnv) activeCount(t *testing.T, class, itemID string) int {
	return e.countRows(t,
		"SELECT COUNT(*) FROM escalations WHERE work_item_class = ? AND work_item_id = ? AND status IN ('open', 'in_progress')",
		class, itemID)
}

// mockNotificationRepository records appended notifications in memory.
type mockNotificationRepository struct {
	mu          sync.Mutex
	appended    []*secondary.NotificationRecord
	delivered   map[string]time.Time
	appendErr   error
	listErr     error
	deliverErrs map[string]error
}

func newMockNotificationRepository() *mockNotificationRepository {
	return &mockNotificationRepository{
		delivered:   make(map[string]time.Time),
		deliverErrs: make(map[string]error),
	}
}

func (m *mockNotificationRepository) Append(ctx context.Context, n *secondary.NotificationRecord) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appended = append(m.appended, n)
	return nil
}

func (m *mockNotificationRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]*secondary.NotificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*secondary.NotificationRecord
	for _, n := range m.appended {
		if n.RelatedEntityType == entityType && n.RelatedEntityID == entityID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *mockNotificationRepository) ListUndelivered(ctx context.Context, limit int) ([]*secondary.NotificationRecord, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*secondary.NotificationRecord
	for _, n := range m.appended {
		if _, ok := m.delivered[n.ID]; !ok {
			out = append(out, n)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockNotificationRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	if err := m.deliverErrs[id]; err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered[id] = at
	return nil
}

var _ secondary.NotificationRepository = (*mockNotificationRepository)(nil)

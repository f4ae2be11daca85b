package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/warden/internal/adapters/sqlite"
	"github.com/example/warden/internal/ports/secondary"
)

func newRecord(itemID string, level int, status string) *secondary.EscalationRecord {
	return &secondary.EscalationRecord{
		WorkItemClass:   "feedback",
		WorkItemID:      itemID,
		Level:           level,
		EscalatedToRole: "Team Lead",
		Reason:          "SLA breached",
		Priority:        "high",
		Category:        "general",
		Status:          status,
		CreatedBy:       "system",
		CreatedAt:       testNow,
	}
}

func TestEscalationRepository_Create(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewEscalationRepository(db)
	ctx := context.Background()

	t.Run("creates escalation and assigns an ID", func(t *testing.T) {
		record := newRecord("FB-001", 1, "open")
		record.EscalatedToUser = "alice"

		if err := repo.Create(ctx, record); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if record.ID == "" {
			t.Fatal("expected ID to be assigned")
		}

		got, err := repo.GetByID(ctx, record.ID)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if got.Level != 1 {
			t.Errorf("Level = %d, want 1", got.Level)
		}
		if got.EscalatedToUser != "alice" {
			t.Errorf("EscalatedToUser = %q, want %q", got.EscalatedToUser, "alice")
		}
		if !got.CreatedAt.Equal(testNow) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, testNow)
		}
		if got.ResolvedAt != nil {
			t.Errorf("ResolvedAt = %v, want nil", got.ResolvedAt)
		}
	})

	t.Run("second active escalation for the same item is rejected", func(t *testing.T) {
		err := repo.Create(ctx, newRecord("FB-001", 1, "open"))
		if !errors.Is(err, secondary.ErrActiveEscalationExists) {
			t.Errorf("expected ErrActiveEscalationExists, got %v", err)
		}
	})

	t.Run("terminal records do not occupy the active slot", func(t *testing.T) {
		if err := repo.Create(ctx, newRecord("FB-002", 1, "escalated")); err != nil {
			t.Fatalf("Create escalated failed: %v", err)
		}
		if err := repo.Create(ctx, newRecord("FB-002", 2, "open")); err != nil {
			t.Errorf("Create active after terminal failed: %v", err)
		}
	})
}

func TestEscalationRepository_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewEscalationRepository(db)

	_, err := repo.GetByID(context.Background(), "ESC-999")
	if !errors.Is(err, secondary.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEscalationRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewEscalationRepository(db)
	ctx := context.Background()

	seedEscalation(t, db, "ESC-1", "feedback", "FB-1", 1, "high", "escalated", 3*time.Hour)
	seedEscalation(t, db, "ESC-2", "feedback", "FB-1", 2, "high", "open", 2*time.Hour)
	seedEscalation(t, db, "ESC-3", "alert", "AL-1", 1, "critical", "in_progress", time.Hour)

	tests := []struct {
		name    string
		filters secondary.EscalationFilters
		wantIDs []string
	}{
		{"all newest first", secondary.EscalationFilters{}, []string{"ESC-3", "ESC-2", "ESC-1"}},
		{"by item", secondary.EscalationFilters{WorkItemClass: "feedback", WorkItemID: "FB-1"}, []string{"ESC-2", "ESC-1"}},
		{"by status", secondary.EscalationFilters{Status: "open"}, []string{"ESC-2"}},
		{"by priority", secondary.EscalationFilters{Priority: "critical"}, []string{"ESC-3"}},
		{"limit", secondary.EscalationFilters{Limit: 1}, []string{"ESC-3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, tt.filters)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("got %d escalations, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("got[%d].ID = %q, want %q", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestEscalationRepository_ActiveAndMaxLevel(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewEscalationRepository(db)
	ctx := context.Background()

	t.Run("no escalations", func(t *testing.T) {
		active, err := repo.GetActiveForItem(ctx, "feedback", "FB-1")
		if err != nil || active != nil {
			t.Errorf("GetActiveForItem = (%v, %v), want (nil, nil)", active, err)
		}
		level, err := repo.MaxLevelForItem(ctx, "feedback", "FB-1")
		if err != nil || level != 0 {
			t.Errorf("MaxLevelForItem = (%d, %v), want (0, nil)", level, err)
		}
	})

	seedEscalation(t, db, "ESC-1", "feedback", "FB-1", 1, "high", "escalated", 3*time.Hour)
	seedEscalation(t, db, "ESC-2", "feedback", "FB-1", 2, "high", "in_progress", 2*time.Hour)

	t.Run("returns the active record and highest level", func(t *testing.T) {
		active, err := repo.GetActiveForItem(ctx, "feedback", "FB-1")
		if err != nil {
			t.Fatalf("GetActiveForItem failed: %v", err)
		}
		if active == nil || active.ID != "ESC-2" {
			t.Errorf("active = %v, want ESC-2", active)
		}
		level, _ := repo.MaxLevelForItem(ctx, "feedback", "FB-1")
		if level != 2 {
			t.Errorf("MaxLevelForItem = %d, want 2", level)
		}
	})
}

func TestEscalationRepository_ListTimedOut(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewEscalationRepository(db)

	seedEscalation(t, db, "ESC-OLD", "feedback", "FB-1", 1, "critical", "open", time.Hour)
	seedEscalation(t, db, "ESC-NEW", "feedback", "FB-2", 1, "critical", "open", 10*time.Minute)
	seedEscalation(t, db, "ESC-MAX", "feedback", "FB-3", 3, "critical", "open", 2*time.Hour)
	seedEscalation(t, db, "ESC-DONE", "feedback", "FB-4", 1, "critical", "resolved", 2*time.Hour)
	seedEscalation(t, db, "ESC-HIGH", "feedback", "FB-5", 1, "high", "in_progress", 2*time.Hour)

	got, err := repo.ListTimedOut(context.Background(), "critical", testNow.Add(-30*time.Minute), 3)
	if err != nil {
		t.Fatalf("ListTimedOut failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "ESC-OLD" {
		t.Errorf("ListTimedOut = %v, want [ESC-OLD]", ids(got))
	}
}

func TestEscalationRepository_ConditionalTransitions(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewEscalationRepository(db)
	ctx := context.Background()

	seedEscalation(t, db, "ESC-1", "feedback", "FB-1", 1, "high", "open", time.Hour)

	t.Run("start moves open to in_progress", func(t *testing.T) {
		if err := repo.UpdateStatus(ctx, "ESC-1", []string{"open"}, "in_progress", testNow); err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}
		got, _ := repo.GetByID(ctx, "ESC-1")
		if got.Status != "in_progress" {
			t.Errorf("Status = %q, want in_progress", got.Status)
		}
	})

	t.Run("stale source status is reported", func(t *testing.T) {
		err := repo.UpdateStatus(ctx, "ESC-1", []string{"open"}, "in_progress", testNow)
		if !errors.Is(err, secondary.ErrStaleTransition) {
			t.Errorf("expected ErrStaleTransition, got %v", err)
		}
	})

	t.Run("mark escalated links the child once", func(t *testing.T) {
		if err := repo.MarkEscalated(ctx, "ESC-1", "ESC-2", testNow); err != nil {
			t.Fatalf("MarkEscalated failed: %v", err)
		}
		got, _ := repo.GetByID(ctx, "ESC-1")
		if got.Status != "escalated" || got.EscalatedToEscalationID != "ESC-2" {
			t.Errorf("got (%s, %s), want (escalated, ESC-2)", got.Status, got.EscalatedToEscalationID)
		}

		err := repo.MarkEscalated(ctx, "ESC-1", "ESC-3", testNow)
		if !errors.Is(err, secondary.ErrStaleTransition) {
			t.Errorf("second MarkEscalated: expected ErrStaleTransition, got %v", err)
		}
	})

	t.Run("resolve requires an active record", func(t *testing.T) {
		err := repo.Resolve(ctx, "ESC-1", "fixed", "bob", testNow)
		if !errors.Is(err, secondary.ErrStaleTransition) {
			t.Errorf("expected ErrStaleTransition, got %v", err)
		}
		err = repo.Resolve(ctx, "ESC-404", "fixed", "bob", testNow)
		if !errors.Is(err, secondary.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestEscalationRepository_Stats(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewEscalationRepository(db)
	ctx := context.Background()

	seedEscalation(t, db, "ESC-1", "feedback", "FB-1", 1, "critical", "open", time.Hour)
	seedEscalation(t, db, "ESC-2", "alert", "AL-1", 1, "high", "in_progress", 30*time.Hour)
	seedEscalation(t, db, "ESC-3", "alert", "AL-2", 1, "low", "open", 2*time.Hour)
	seedEscalation(t, db, "ESC-OLD", "alert", "AL-3", 1, "critical", "open", 40*24*time.Hour)

	if err := repo.Resolve(ctx, "ESC-3", "done", "bob", testNow.Add(-90*time.Minute)); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	stats, err := repo.Stats(ctx, testNow.Add(-7*24*time.Hour), testNow)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.Open != 1 {
		t.Errorf("Open = %d, want 1", stats.Open)
	}
	if stats.InProgress != 1 {
		t.Errorf("InProgress = %d, want 1", stats.InProgress)
	}
	if stats.CriticalOpen != 1 {
		t.Errorf("CriticalOpen = %d, want 1", stats.CriticalOpen)
	}
	if stats.Last24h != 2 {
		t.Errorf("Last24h = %d, want 2", stats.Last24h)
	}
	if stats.MeanResolutionMinutes < 29.9 || stats.MeanResolutionMinutes > 30.1 {
		t.Errorf("MeanResolutionMinutes = %f, want 30", stats.MeanResolutionMinutes)
	}
}

func ids(records []*secondary.EscalationRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

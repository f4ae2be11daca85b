package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/warden/internal/ports/primary"
	"github.com/example/warden/internal/ports/secondary"
)

func TestEscalationService_CreateEscalation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := env.insertFeedback(t, "FB-1", "critical", 20*time.Minute)

	created, err := env.engine.CreateEscalation(ctx, item, "SLA breached")
	require.NoError(t, err)
	require.NotNil(t, created)

	assert.Equal(t, 1, created.Level)
	assert.Equal(t, "open", created.Status)
	assert.Equal(t, "Security Officer", created.EscalatedToRole)
	assert.Equal(t, "system", created.CreatedBy)
	assert.Equal(t, "billing", created.Category)
	assert.Empty(t, created.ParentEscalationID)
	assert.False(t, created.Manual)

	activity, err := env.engine.ListActivity(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, "created", activity[0].ActivityType)

	notifications, err := env.notifications.ListByEntity(ctx, "escalation", created.ID)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, "Security Officer", notifications[0].RecipientRole)
	assert.Equal(t, "[CRITICAL] SLA breach: Feedback FB-1", notifications[0].Subject)
	assert.Equal(t, "created", notifications[0].Metadata["action"])
}

func TestEscalationService_CreateEscalationIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := env.insertFeedback(t, "FB-1", "high", 2*time.Hour)

	first, err := env.engine.CreateEscalation(ctx, item, "first")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := env.engine.CreateEscalation(ctx, item, "second")
	require.NoError(t, err)
	assert.Nil(t, second, "a second active escalation must be suppressed")

	assert.Equal(t, 1, env.countRows(t, "SELECT COUNT(*) FROM escalations"))
	assert.Equal(t, 1, env.countRows(t, "SELECT COUNT(*) FROM notifications"))
	assert.Equal(t, 1, env.countRows(t, "SELECT COUNT(*) FROM escalation_activity_log"))
}

func TestEscalationService_CreateEscalationRejectsUnknownPriority(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.CreateEscalation(context.Background(), &primary.WorkItem{
		Class: "feedback", ID: "FB-X", Priority: "urgent",
	}, "r")
	assert.Error(t, err)
}

func TestEscalationService_EscalateToNextLevel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := env.insertFeedback(t, "FB-1", "high", 2*time.Hour)

	root, err := env.engine.CreateEscalation(ctx, item, "breach")
	require.NoError(t, err)

	env.clock.Advance(3 * time.Hour)
	child, err := env.engine.EscalateToNextLevel(ctx, root.ID, "timeout")
	require.NoError(t, err)
	require.NotNil(t, child)

	assert.Equal(t, 2, child.Level)
	assert.Equal(t, root.ID, child.ParentEscalationID)
	assert.Equal(t, "IT Manager", child.EscalatedToRole)

	parent, err := env.engine.GetEscalation(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, "escalated", parent.Status)
	assert.Equal(t, child.ID, parent.EscalatedToEscalationID)
	assert.Equal(t, 1, env.activeCount(t, "feedback", "FB-1"))

	t.Run("re-escalating a superseded record is a no-op", func(t *testing.T) {
		again, err := env.engine.EscalateToNextLevel(ctx, root.ID, "timeout")
		require.NoError(t, err)
		assert.Nil(t, again)
		assert.Equal(t, 2, env.countRows(t, "SELECT COUNT(*) FROM escalations"))
	})

	t.Run("automatic ceiling is enforced", func(t *testing.T) {
		third, err := env.engine.EscalateToNextLevel(ctx, child.ID, "timeout")
		require.NoError(t, err)
		require.NotNil(t, third)
		assert.Equal(t, 3, third.Level)
		assert.Equal(t, "CISO", third.EscalatedToRole)

		_, err = env.engine.EscalateToNextLevel(ctx, third.ID, "timeout")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "automatic maximum 3")
		assert.Equal(t, 3, env.countRows(t, "SELECT COUNT(*) FROM escalations"))
	})
}

func TestEscalationService_ManualEscalationBeyondMaxLevel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := env.insertFeedback(t, "FB-1", "critical", time.Hour)

	current, err := env.engine.CreateEscalation(ctx, item, "breach")
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		current, err = env.engine.EscalateToNextLevel(ctx, current.ID, "timeout")
		require.NoError(t, err)
	}
	require.Equal(t, 3, current.Level)

	manual, err := env.engine.CreateManualEscalation(ctx, primary.ManualEscalationRequest{
		WorkItemClass: "feedback",
		WorkItemID:    "FB-1",
		Reason:        "customer is threatening legal action",
		ActorID:       "alice",
		TargetUser:    "board-secretary",
	})
	require.NoError(t, err)

	assert.Equal(t, 4, manual.Level)
	assert.True(t, manual.Manual)
	assert.Equal(t, "alice", manual.CreatedBy)
	assert.Equal(t, "board-secretary", manual.EscalatedToUser)
	assert.Equal(t, "IT Manager", manual.EscalatedToRole, "levels beyond the matrix fall back")
	assert.Equal(t, current.ID, manual.ParentEscalationID)

	previous, err := env.engine.GetEscalation(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, "escalated", previous.Status)
	assert.Equal(t, 1, env.activeCount(t, "feedback", "FB-1"))

	chain, err := env.engine.GetChain(ctx, manual.ID)
	require.NoError(t, err)
	require.Len(t, chain, 4)
	for i, e := range chain {
		assert.Equal(t, i+1, e.Level)
	}
}

func TestEscalationService_ManualEscalationGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.insertFeedback(t, "FB-1", "low", time.Minute)

	tests := []struct {
		name    string
		req     primary.ManualEscalationRequest
		wantErr string
	}{
		{
			name:    "unknown item",
			req:     primary.ManualEscalationRequest{WorkItemClass: "feedback", WorkItemID: "FB-404", Reason: "r", ActorID: "alice"},
			wantErr: "work item FB-404 not found",
		},
		{
			name:    "system actor",
			req:     primary.ManualEscalationRequest{WorkItemClass: "feedback", WorkItemID: "FB-1", Reason: "r", ActorID: "system"},
			wantErr: "requires a user actor",
		},
		{
			name:    "missing reason",
			req:     primary.ManualEscalationRequest{WorkItemClass: "feedback", WorkItemID: "FB-1", ActorID: "alice"},
			wantErr: "requires a reason",
		},
		{
			name:    "unknown class",
			req:     primary.ManualEscalationRequest{WorkItemClass: "invoice", WorkItemID: "FB-1", Reason: "r", ActorID: "alice"},
			wantErr: "unknown work item class",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.CreateManualEscalation(ctx, tt.req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("first manual escalation starts at level 1 with no parent", func(t *testing.T) {
		e, err := env.engine.CreateManualEscalation(ctx, primary.ManualEscalationRequest{
			WorkItemClass: "feedback", WorkItemID: "FB-1", Reason: "r", ActorID: "alice", TargetRole: "Legal",
		})
		require.NoError(t, err)
		assert.Equal(t, 1, e.Level)
		assert.Equal(t, "Legal", e.EscalatedToRole)
		assert.Empty(t, e.ParentEscalationID)
	})
}

func TestEscalationService_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := env.insertFeedback(t, "FB-1", "medium", 5*time.Hour)

	e, err := env.engine.CreateEscalation(ctx, item, "breach")
	require.NoError(t, err)

	require.NoError(t, env.engine.StartEscalation(ctx, e.ID, "bob"))
	err = env.engine.StartEscalation(ctx, e.ID, "bob")
	assert.Error(t, err, "in_progress cannot be started again")

	env.clock.Advance(45 * time.Minute)
	require.NoError(t, env.engine.ResolveEscalation(ctx, primary.ResolveEscalationRequest{
		EscalationID: e.ID, Resolution: "refund issued", ResolvedBy: "bob",
	}))

	got, err := env.engine.GetEscalation(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "resolved", got.Status)
	assert.Equal(t, "refund issued", got.Resolution)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, got.ResolvedAt.Equal(env.clock.Now()), "ResolvedAt = %v", got.ResolvedAt)

	activity, err := env.engine.ListActivity(ctx, e.ID)
	require.NoError(t, err)
	types := make([]string, len(activity))
	for i, a := range activity {
		types[i] = a.ActivityType
	}
	assert.Equal(t, []string{"created", "status_changed", "resolved"}, types)

	t.Run("resolved escalations are terminal", func(t *testing.T) {
		err := env.engine.ResolveEscalation(ctx, primary.ResolveEscalationRequest{
			EscalationID: e.ID, Resolution: "again", ResolvedBy: "bob",
		})
		assert.Error(t, err)
	})

	t.Run("resolution text and actor are required", func(t *testing.T) {
		assert.Error(t, env.engine.ResolveEscalation(ctx, primary.ResolveEscalationRequest{EscalationID: e.ID, ResolvedBy: "bob"}))
		assert.Error(t, env.engine.ResolveEscalation(ctx, primary.ResolveEscalationRequest{EscalationID: e.ID, Resolution: "x"}))
	})

	t.Run("unknown escalation", func(t *testing.T) {
		err := env.engine.StartEscalation(ctx, "ESC-404", "bob")
		assert.True(t, errors.Is(err, secondary.ErrNotFound))
	})
}

func TestEscalationService_GetStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	critical := env.insertFeedback(t, "FB-1", "critical", time.Hour)
	low := env.insertFeedback(t, "FB-2", "low", 30*time.Hour)

	_, err := env.engine.CreateEscalation(ctx, critical, "breach")
	require.NoError(t, err)
	e, err := env.engine.CreateEscalation(ctx, low, "breach")
	require.NoError(t, err)

	env.clock.Advance(time.Hour)
	require.NoError(t, env.engine.ResolveEscalation(ctx, primary.ResolveEscalationRequest{
		EscalationID: e.ID, Resolution: "done", ResolvedBy: "bob",
	}))

	stats, err := env.engine.GetStats(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, stats.WindowDays)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Open)
	assert.Equal(t, 1, stats.CriticalOpen)
	assert.Equal(t, 2, stats.Last24h)
	assert.InDelta(t, 60.0, stats.MeanResolutionMinutes, 0.1)

	_, err = env.engine.GetStats(ctx, 0)
	assert.Error(t, err)
}

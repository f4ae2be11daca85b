package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/warden/internal/ports/secondary"
)

// NotificationRepository implements secondary.NotificationRepository with SQLite.
type NotificationRepository struct {
	db querier
}

// NewNotificationRepository creates a new SQLite notification repository.
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, recipient_role, recipient_user, subject, message, priority,
	related_entity_type, related_entity_id, metadata, created_at, delivered_at`

// Append writes a new notification. Metadata is stored as a JSON object.
func (r *NotificationRepository) Append(ctx context.Context, n *secondary.NotificationRecord) error {
	if n.ID == "" {
		n.ID = newID("NOTIF")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	metadata := []byte("{}")
	if len(n.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(n.Metadata); err != nil {
			return fmt.Errorf("failed to encode notification metadata: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (`+notificationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID,
		n.RecipientRole,
		nullString(n.RecipientUser),
		n.Subject,
		n.Message,
		n.Priority,
		n.RelatedEntityType,
		n.RelatedEntityID,
		string(metadata),
		formatTime(n.CreatedAt),
		nullTime(n.DeliveredAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListByEntity returns notifications about one entity, oldest first.
func (r *NotificationRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]*secondary.NotificationRecord, error) {
	return r.query(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		WHERE related_entity_type = ? AND related_entity_id = ? ORDER BY created_at, rowid`,
		entityType, entityID)
}

// ListUndelivered returns up to limit notifications the relay has not delivered yet.
func (r *NotificationRepository) ListUndelivered(ctx context.Context, limit int) ([]*secondary.NotificationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.query(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		WHERE delivered_at IS NULL ORDER BY created_at, rowid LIMIT ?`,
		limit)
}

// MarkDelivered stamps a notification as delivered.
func (r *NotificationRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE notifications SET delivered_at = ? WHERE id = ? AND delivered_at IS NULL",
		formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification delivered: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("undelivered notification %s: %w", id, secondary.ErrNotFound)
	}
	return nil
}

func (r *NotificationRepository) query(ctx context.Context, query string, args ...any) ([]*secondary.NotificationRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*secondary.NotificationRecord
	for rows.Next() {
		var (
			user        sql.NullString
			metadata    string
			createdAt   time.Time
			deliveredAt sql.NullTime
		)
		n := &secondary.NotificationRecord{}
		if err := rows.Scan(&n.ID, &n.RecipientRole, &user, &n.Subject, &n.Message, &n.Priority,
			&n.RelatedEntityType, &n.RelatedEntityID, &metadata, &createdAt, &deliveredAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &n.Metadata); err != nil {
			return nil, fmt.Errorf("notification %s has invalid metadata: %w", n.ID, err)
		}
		n.RecipientUser = user.String
		n.CreatedAt = createdAt.UTC()
		n.DeliveredAt = timePtr(deliveredAt)
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// Ensure NotificationRepository implements the interface
var _ secondary.NotificationRepository = (*NotificationRepository)(nil)

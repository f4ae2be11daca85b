package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/warden/internal/ports/secondary"
)

// Transactor implements secondary.Transactor over a *sql.DB.
type Transactor struct {
	db *sql.DB
}

// NewTransactor creates a new SQLite transactor.
func NewTransactor(db *sql.DB) *Transactor {
	return &Transactor{db: db}
}

// WithinTx runs fn with repositories bound to a fresh transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, repos secondary.TxRepositories) error) (err error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	repos := secondary.TxRepositories{
		Escalations:   &EscalationRepository{db: tx},
		Activity:      &ActivityLogRepository{db: tx},
		Notifications: &NotificationRepository{db: tx},
	}
	if err = fn(ctx, repos); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ensure Transactor implements the interface
var _ secondary.Transactor = (*Transactor)(nil)

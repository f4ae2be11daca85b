package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/warden/internal/metrics"
	"github.com/example/warden/internal/ports/secondary"
)

const defaultRelayBatch = 50

// NotificationRelay delivers recorded notifications to external sinks. It
// consumes the notification store and sits outside the escalation transaction
// path: a failed delivery never affects an escalation.
type NotificationRelay struct {
	repo     secondary.NotificationRepository
	sinks    []secondary.NotificationSink
	interval time.Duration
	batch    int
	log      *zap.SugaredLogger
	now      func() time.Time
}

// NewNotificationRelay creates a relay over the given sinks.
func NewNotificationRelay(repo secondary.NotificationRepository, sinks []secondary.NotificationSink, interval time.Duration, log *zap.SugaredLogger) *NotificationRelay {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &NotificationRelay{
		repo:     repo,
		sinks:    sinks,
		interval: interval,
		batch:    defaultRelayBatch,
		log:      log,
		now:      time.Now,
	}
}

// Enabled reports whether any sink is configured.
func (r *NotificationRelay) Enabled() bool {
	return len(r.sinks) > 0
}

// Run relays on every interval until ctx is cancelled.
func (r *NotificationRelay) Run(ctx context.Context) {
	if !r.Enabled() {
		r.log.Infow("notification relay disabled: no sinks configured")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RelayOnce(ctx); err != nil {
			r.log.Errorw("notification relay failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RelayOnce delivers one batch of pending notifications. A notification is
// marked delivered when at least one sink accepted it; otherwise it stays
// pending for the next run.
func (r *NotificationRelay) RelayOnce(ctx context.Context) (int, error) {
	pending, err := r.repo.ListUndelivered(ctx, r.batch)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, n := range pending {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}

		accepted := 0
		for _, sink := range r.sinks {
			if err := sink.Deliver(ctx, n); err != nil {
				metrics.NotificationsFailed.WithLabelValues(sink.Name()).Inc()
				r.log.Warnw("sink rejected notification",
					"sink", sink.Name(),
					"notificationID", n.ID,
					"escalationID", n.RelatedEntityID,
					"error", err)
				continue
			}
			metrics.NotificationsDelivered.WithLabelValues(sink.Name()).Inc()
			accepted++
		}
		if accepted == 0 {
			continue
		}

		if err := r.repo.MarkDelivered(ctx, n.ID, r.now().UTC()); err != nil {
			r.log.Errorw("failed to mark notification delivered", "notificationID", n.ID, "error", err)
			continue
		}
		delivered++
	}

	if delivered > 0 {
		r.log.Infow("notifications relayed", "delivered", delivered, "pending", len(pending)-delivered)
	}
	return delivered, nil
}

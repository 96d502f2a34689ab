package workers

import (
	"context"
	"log/slog"

	"smartsolve/domain"
)

type NotificationDeliverer interface {
	DeliverNotification(ctx context.Context, n domain.Notification) domain.DeliveryOutcome
}

// NotificationWorker drains the fan-out queue, one bounded delivery at a time.
type NotificationWorker struct {
	jobs      <-chan domain.Notification
	deliverer NotificationDeliverer
	log       *slog.Logger
}

func NewNotificationWorker(jobs <-chan domain.Notification, deliverer NotificationDeliverer, log *slog.Logger) *NotificationWorker {
	return &NotificationWorker{jobs: jobs, deliverer: deliverer, log: log}
}

func (w *NotificationWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping notification worker")
			return nil
		case n, ok := <-w.jobs:
			if !ok {
				w.log.Debug("Notification queue is closed")
				return nil
			}
			outcome := w.deliverer.DeliverNotification(ctx, n)
			w.log.Debug("Notification pushed",
				"notification_id", n.ID, "user_id", n.Target, "event_type", n.Type, "status", outcome.Status)
		}
	}
}

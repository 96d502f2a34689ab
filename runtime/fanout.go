package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"smartsolve/contract"
	"smartsolve/domain"
	"smartsolve/observability"
	"smartsolve/repositories"
	"smartsolve/runtime/workers"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Fanout delivers system generated notifications.
// Every notification is persisted before any push is attempted; a push that
// reaches at least one connection marks it delivered, otherwise it stays pending.
type Fanout struct {
	router     contract.IRouter
	repository repositories.INotificationRepository
	monitoring *observability.MonitoringManager
	log        *slog.Logger
	jobs       chan domain.Notification
	numWorkers int
	now        func() time.Time
}

func NewFanout(router contract.IRouter, repository repositories.INotificationRepository,
	monitoring *observability.MonitoringManager, log *slog.Logger, numWorkers, bufferSize int) *Fanout {
	return &Fanout{
		router:     router,
		repository: repository,
		monitoring: monitoring,
		log:        log,
		jobs:       make(chan domain.Notification, bufferSize),
		numWorkers: max(numWorkers, 1),
		now:        time.Now,
	}
}

// Notify persists a notification and makes one bounded delivery attempt.
func (f *Fanout) Notify(ctx context.Context, target domain.UserID, eventType domain.EventType,
	payload []byte) (domain.Notification, domain.DeliveryOutcome, error) {
	n, err := f.persist(ctx, target, eventType, payload)
	if err != nil {
		return domain.Notification{}, domain.DeliveryOutcome{}, err
	}
	return n, f.DeliverNotification(ctx, n), nil
}

// NotifyMany persists one notification per distinct target and hands their
// delivery to the workers. It returns once everything is persisted, without
// waiting for any push. Failures are per target and joined.
func (f *Fanout) NotifyMany(ctx context.Context, targets []domain.UserID, eventType domain.EventType,
	payload []byte) ([]domain.Notification, error) {
	var (
		notifications []domain.Notification
		errs          []error
	)
	for _, target := range lo.Uniq(targets) {
		n, err := f.persist(ctx, target, eventType, payload)
		if err != nil {
			errs = append(errs, fmt.Errorf("target %s: %w", target, err))
			continue
		}
		notifications = append(notifications, n)
		f.enqueue(n)
	}
	return notifications, stderrors.Join(errs...)
}

func (f *Fanout) persist(ctx context.Context, target domain.UserID, eventType domain.EventType,
	payload []byte) (domain.Notification, error) {
	n, err := domain.NewNotification(target, eventType, payload, uuid.New(), f.now())
	if err != nil {
		return domain.Notification{}, err
	}
	if err = f.repository.Save(ctx, n); err != nil {
		f.monitoring.IncrPersistFailures()
		f.log.Error("Unable to persist notification", "user_id", target, "event_type", eventType, "error", err)
		return domain.Notification{}, err
	}
	return n, nil
}

// enqueue never blocks; a full queue leaves the notification pending.
func (f *Fanout) enqueue(n domain.Notification) {
	select {
	case f.jobs <- n:
		f.monitoring.IncrNotificationsQueued()
	default:
		f.monitoring.IncrNotificationsDropped()
		f.log.Warn("Fan-out queue full, notification left pending",
			"user_id", n.Target, "event_type", n.Type, "notification_id", n.ID)
	}
}

// DeliverNotification pushes one persisted notification to its target.
func (f *Fanout) DeliverNotification(ctx context.Context, n domain.Notification) domain.DeliveryOutcome {
	outcome := f.router.PushToUser(ctx, n.Target, domain.NewEvent(n.Type, n, f.now()))
	if !outcome.Reached() {
		return outcome
	}
	if _, err := f.repository.MarkDelivered(context.WithoutCancel(ctx), n.ID); err != nil {
		f.log.Error("Unable to mark notification delivered", "notification_id", n.ID, "error", err)
	}
	return outcome
}

// Workers returns the pool draining the fan-out queue, to be supervised.
func (f *Fanout) Workers() []contract.Worker {
	pool := make([]contract.Worker, 0, f.numWorkers)
	for range f.numWorkers {
		pool = append(pool, workers.NewNotificationWorker(f.jobs, f, f.log))
	}
	return pool
}

// Queue exposes the job queue to the channel capacity worker.
func (f *Fanout) Queue() workers.NamedChannel {
	return workers.NamedChannel{Name: "notification_jobs", Channel: f.jobs}
}

// QueueLength is the number of notifications waiting for a worker.
func (f *Fanout) QueueLength() int {
	return len(f.jobs)
}

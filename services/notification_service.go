//go:generate go run go.uber.org/mock/mockgen -source=notification_service.go -destination=../mocks/mock_notification_service.go -package=mocks
package services

import (
	"context"
	"fmt"

	"smartsolve/contract"
	"smartsolve/domain"
	"smartsolve/errors"
	"smartsolve/repositories"

	"github.com/google/uuid"
)

type INotificationService interface {
	Notify(ctx context.Context, target domain.UserID, eventType domain.EventType, payload []byte) (domain.Notification, domain.DeliveryOutcome, error)
	NotifyMany(ctx context.Context, targets []domain.UserID, eventType domain.EventType, payload []byte) ([]domain.Notification, error)
	PendingNotifications(ctx context.Context, userID domain.UserID) ([]domain.Notification, error)
	AcknowledgeNotification(ctx context.Context, userID domain.UserID, id uuid.UUID) (domain.Notification, error)
}

type NotificationService struct {
	notifier      contract.INotifier
	notifications repositories.INotificationRepository
}

func NewNotificationService(notifier contract.INotifier, notifications repositories.INotificationRepository) *NotificationService {
	return &NotificationService{notifier: notifier, notifications: notifications}
}

func (s *NotificationService) Notify(ctx context.Context, target domain.UserID, eventType domain.EventType,
	payload []byte) (domain.Notification, domain.DeliveryOutcome, error) {
	return s.notifier.Notify(ctx, target, eventType, payload)
}

func (s *NotificationService) NotifyMany(ctx context.Context, targets []domain.UserID, eventType domain.EventType,
	payload []byte) ([]domain.Notification, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no target", errors.ErrInvalidParticipant)
	}
	return s.notifier.NotifyMany(ctx, targets, eventType, payload)
}

func (s *NotificationService) PendingNotifications(ctx context.Context, userID domain.UserID) ([]domain.Notification, error) {
	return s.notifications.Pending(ctx, userID)
}

// AcknowledgeNotification marks a notification delivered on behalf of its target only.
func (s *NotificationService) AcknowledgeNotification(ctx context.Context, userID domain.UserID, id uuid.UUID) (domain.Notification, error) {
	n, err := s.notifications.Get(ctx, id)
	if err != nil {
		return domain.Notification{}, err
	}
	if n.Target != userID {
		return domain.Notification{}, fmt.Errorf("%w: notification %s belongs to another user", errors.ErrForbidden, id)
	}
	return s.notifications.MarkDelivered(ctx, id)
}

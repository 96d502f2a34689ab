package services_test

import (
	"context"
	"testing"

	"smartsolve/domain"
	"smartsolve/errors"
	"smartsolve/mocks"
	"smartsolve/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newNotificationService(t *testing.T) (*services.NotificationService, *mocks.MockINotifier, *mocks.MockINotificationRepository) {
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockINotifier(ctrl)
	repository := mocks.NewMockINotificationRepository(ctrl)
	return services.NewNotificationService(notifier, repository), notifier, repository
}

func TestNotificationService_Notify_Delegates_To_Fanout(t *testing.T) {
	req := require.New(t)
	svc, notifier, _ := newNotificationService(t)
	payload := []byte(`{"question":"q1"}`)

	notifier.EXPECT().
		Notify(gomock.Any(), domain.UserID("bob"), domain.EventNewAnswer, payload).
		Return(domain.Notification{Target: "bob"}, domain.NewDeliveryOutcome(0, 0), nil)

	n, outcome, err := svc.Notify(context.Background(), "bob", domain.EventNewAnswer, payload)

	req.NoError(err)
	req.Equal(domain.UserID("bob"), n.Target)
	req.Equal(domain.Undelivered, outcome.Status)
}

func TestNotificationService_NotifyMany_Requires_Targets(t *testing.T) {
	req := require.New(t)
	svc, notifier, _ := newNotificationService(t)
	notifier.EXPECT().NotifyMany(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	_, err := svc.NotifyMany(context.Background(), nil, domain.EventSystem, nil)

	req.ErrorIs(err, errors.ErrInvalidParticipant)
}

func TestNotificationService_AcknowledgeNotification(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	t.Run("should mark the notification of its own target", func(t *testing.T) {
		req := require.New(t)
		svc, _, repository := newNotificationService(t)

		gomock.InOrder(
			repository.EXPECT().Get(gomock.Any(), id).Return(domain.Notification{ID: id, Target: "bob"}, nil),
			repository.EXPECT().MarkDelivered(gomock.Any(), id).Return(domain.Notification{ID: id, Target: "bob", Delivered: true}, nil),
		)

		n, err := svc.AcknowledgeNotification(ctx, "bob", id)

		req.NoError(err)
		req.True(n.Delivered)
	})

	t.Run("should refuse another user's notification", func(t *testing.T) {
		req := require.New(t)
		svc, _, repository := newNotificationService(t)

		repository.EXPECT().Get(gomock.Any(), id).Return(domain.Notification{ID: id, Target: "bob"}, nil)
		repository.EXPECT().MarkDelivered(gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.AcknowledgeNotification(ctx, "alice", id)

		req.ErrorIs(err, errors.ErrForbidden)
	})

	t.Run("should surface unknown notifications", func(t *testing.T) {
		req := require.New(t)
		svc, _, repository := newNotificationService(t)

		repository.EXPECT().Get(gomock.Any(), id).Return(domain.Notification{}, errors.ErrNotFound)

		_, err := svc.AcknowledgeNotification(ctx, "bob", id)

		req.ErrorIs(err, errors.ErrNotFound)
	})
}

func TestNotificationService_PendingNotifications(t *testing.T) {
	req := require.New(t)
	svc, _, repository := newNotificationService(t)
	pending := []domain.Notification{{ID: uuid.New(), Target: "bob"}}

	repository.EXPECT().Pending(gomock.Any(), domain.UserID("bob")).Return(pending, nil)

	got, err := svc.PendingNotifications(context.Background(), "bob")

	req.NoError(err)
	req.Equal(pending, got)
}

//go:generate go run go.uber.org/mock/mockgen -source=messaging_service.go -destination=../mocks/mock_messaging_service.go -package=mocks
package services

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"smartsolve/contract"
	"smartsolve/domain"
	"smartsolve/errors"
	"smartsolve/moderation"
	"smartsolve/observability"
	"smartsolve/repositories"

	"github.com/google/uuid"
)

type IMessagingService interface {
	SendMessage(ctx context.Context, sender, receiver domain.UserID, content string) (domain.Message, domain.DeliveryOutcome, error)
	GetConversation(ctx context.Context, a, b domain.UserID) ([]domain.Message, error)
	MarkMessageRead(ctx context.Context, id uuid.UUID) (domain.Message, error)
	DeleteMessage(ctx context.Context, id uuid.UUID, requester domain.UserID) (domain.Message, error)
	UnreadCount(ctx context.Context, userID domain.UserID) (int, error)
}

// MessagingService is the send path: validate, review, persist, then deliver.
// Delivery only starts once the store has released the conversation.
type MessagingService struct {
	messages         repositories.IMessageRepository
	router           contract.IRouter
	reviewer         moderation.Reviewer
	monitoring       *observability.MonitoringManager
	log              *slog.Logger
	maxContentLength int
	now              func() time.Time
}

func NewMessagingService(messages repositories.IMessageRepository, router contract.IRouter,
	reviewer moderation.Reviewer, monitoring *observability.MonitoringManager,
	log *slog.Logger, maxContentLength int) *MessagingService {
	return &MessagingService{
		messages:         messages,
		router:           router,
		reviewer:         reviewer,
		monitoring:       monitoring,
		log:              log,
		maxContentLength: maxContentLength,
		now:              time.Now,
	}
}

// SendMessage fails only if the message could not be persisted.
// The delivery outcome is informational.
func (s *MessagingService) SendMessage(ctx context.Context, sender, receiver domain.UserID,
	content string) (domain.Message, domain.DeliveryOutcome, error) {
	draft, err := domain.Draft{Sender: sender, Receiver: receiver, Content: content}.Validate(s.maxContentLength)
	if err != nil {
		return domain.Message{}, domain.DeliveryOutcome{}, err
	}

	verdict := s.reviewer.Review(draft.Content)
	if len(verdict.CensoredWords) > 0 {
		s.log.Info("Message censored", "user_id", sender, "words", len(verdict.CensoredWords))
	}
	draft.Content, draft.Language = verdict.Content, verdict.Language

	msg, err := s.messages.Append(ctx, draft)
	if err != nil {
		if !isValidationError(err) {
			s.monitoring.IncrPersistFailures()
			s.log.Error("Unable to persist message", "user_id", sender, "error", err)
		}
		return domain.Message{}, domain.DeliveryOutcome{}, err
	}
	s.monitoring.IncrMessagesPersisted()

	return msg, s.router.Deliver(ctx, msg), nil
}

func (s *MessagingService) GetConversation(ctx context.Context, a, b domain.UserID) ([]domain.Message, error) {
	return s.messages.RangeFor(ctx, a, b)
}

// MarkMessageRead has no actor check and no already-read guard: a repeated
// call refreshes the read timestamp.
func (s *MessagingService) MarkMessageRead(ctx context.Context, id uuid.UUID) (domain.Message, error) {
	msg, err := s.messages.MarkRead(ctx, id)
	if err != nil {
		return domain.Message{}, err
	}
	s.broadcast(ctx, domain.EventMessageRead, msg)
	return msg, nil
}

func (s *MessagingService) DeleteMessage(ctx context.Context, id uuid.UUID, requester domain.UserID) (domain.Message, error) {
	msg, err := s.messages.SoftDelete(ctx, id, requester)
	if err != nil {
		return domain.Message{}, err
	}
	s.broadcast(ctx, domain.EventMessageDeleted, msg)
	return msg, nil
}

func (s *MessagingService) UnreadCount(ctx context.Context, userID domain.UserID) (int, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return 0, err
	}
	return s.messages.UnreadCount(ctx, userID)
}

// broadcast tells every connection watching the conversation about a state change.
func (s *MessagingService) broadcast(ctx context.Context, eventType domain.EventType, msg domain.Message) {
	outcome := s.router.PushToRoom(ctx, msg.Conversation.Room(), domain.NewEvent(eventType, msg, s.now()))
	s.log.Debug("Conversation notified", "conversation", msg.Conversation, "event_type", eventType, "status", outcome.Status)
}

func isValidationError(err error) bool {
	return stderrors.Is(err, errors.ErrInvalidContent) || stderrors.Is(err, errors.ErrInvalidParticipant)
}

package domain

import (
	"fmt"
	"time"

	"smartsolve/errors"

	"github.com/google/uuid"
)

type EventType string

const (
	EventNewMessage     EventType = "new_message"
	EventMessageSent    EventType = "message_sent"
	EventMessageRead    EventType = "message_read"
	EventMessageDeleted EventType = "message_deleted"
	EventNewQuestion    EventType = "new_question"
	EventNewAnswer      EventType = "new_answer"
	EventAnswerAccepted EventType = "answer_accepted"
	EventVote           EventType = "vote"
	EventSystem         EventType = "system"
)

// notificationTypes are the event types an upstream producer may emit.
var notificationTypes = map[EventType]struct{}{
	EventNewQuestion:    {},
	EventNewAnswer:      {},
	EventAnswerAccepted: {},
	EventVote:           {},
	EventSystem:         {},
}

func (t EventType) IsNotification() bool {
	_, ok := notificationTypes[t]
	return ok
}

// Notification is a system generated event addressed to one user.
// The payload is opaque to the hub.
type Notification struct {
	ID          uuid.UUID
	Target      UserID
	Type        EventType
	Payload     []byte
	CreatedAt   time.Time
	Delivered   bool
	DeliveredAt *time.Time
}

func NewNotification(target UserID, eventType EventType, payload []byte, id uuid.UUID, at time.Time) (Notification, error) {
	if err := ValidateUserID(target); err != nil {
		return Notification{}, fmt.Errorf("target: %w", err)
	}
	if !eventType.IsNotification() {
		return Notification{}, fmt.Errorf("%w: unknown notification type %q", errors.ErrInvalidContent, eventType)
	}
	return Notification{
		ID:        id,
		Target:    target,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: at.UTC(),
	}, nil
}

func (n *Notification) MarkDelivered(at time.Time) {
	at = at.UTC()
	n.Delivered = true
	n.DeliveredAt = &at
}

package domain

import (
	"fmt"
	"strings"
	"time"

	"smartsolve/errors"

	"github.com/google/uuid"
)

// Draft is a send request before it is validated and persisted.
type Draft struct {
	Sender   UserID
	Receiver UserID
	Content  string
	Language string
}

// Message is a durable direct message.
// It is mutated only through MarkRead and SoftDelete, never physically removed.
type Message struct {
	ID           uuid.UUID
	Sender       UserID
	Receiver     UserID
	Conversation ConversationKey
	Content      string
	Language     string
	CreatedAt    time.Time
	Read         bool
	ReadAt       *time.Time
	Deleted      bool
	DeletedBy    UserID
	DeletedAt    *time.Time
}

// Validate checks a draft and returns it with trimmed content.
func (d Draft) Validate(maxContentLength int) (Draft, error) {
	if err := ValidateUserID(d.Sender); err != nil {
		return Draft{}, fmt.Errorf("sender: %w", err)
	}
	if err := ValidateUserID(d.Receiver); err != nil {
		return Draft{}, fmt.Errorf("receiver: %w", err)
	}
	if d.Sender == d.Receiver {
		return Draft{}, fmt.Errorf("%w: cannot message yourself", errors.ErrInvalidParticipant)
	}
	d.Content = strings.TrimSpace(d.Content)
	if d.Content == "" {
		return Draft{}, fmt.Errorf("%w: content is empty", errors.ErrInvalidContent)
	}
	if maxContentLength > 0 && len([]rune(d.Content)) > maxContentLength {
		return Draft{}, fmt.Errorf("%w: content exceeds %d characters", errors.ErrInvalidContent, maxContentLength)
	}
	return d, nil
}

// NewMessage builds a message from a validated draft.
// The conversation key is always derived here, never taken from the caller.
func NewMessage(d Draft, id uuid.UUID, at time.Time) (Message, error) {
	d, err := d.Validate(0)
	if err != nil {
		return Message{}, err
	}
	return Message{
		ID:           id,
		Sender:       d.Sender,
		Receiver:     d.Receiver,
		Conversation: NewConversationKey(d.Sender, d.Receiver),
		Content:      d.Content,
		Language:     d.Language,
		CreatedAt:    at.UTC(),
	}, nil
}

// CheckIntegrity recomputes the conversation key before any write.
func (m Message) CheckIntegrity() error {
	if m.Conversation != NewConversationKey(m.Sender, m.Receiver) {
		return fmt.Errorf("%w: conversation key %q does not match participants", errors.ErrInvalidParticipant, m.Conversation)
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("%w: content is empty", errors.ErrInvalidContent)
	}
	return nil
}

func (m Message) Involves(u UserID) bool {
	return m.Sender == u || m.Receiver == u
}

// MarkRead sets the read flag and refreshes the read timestamp.
// Calling it again on a read message only moves the timestamp.
func (m *Message) MarkRead(at time.Time) {
	at = at.UTC()
	m.Read = true
	m.ReadAt = &at
}

// SoftDelete flags the message as deleted on behalf of one of its participants.
func (m *Message) SoftDelete(by UserID, at time.Time) error {
	if !m.Involves(by) {
		return fmt.Errorf("%w: %s is not a participant of message %s", errors.ErrForbidden, by, m.ID)
	}
	at = at.UTC()
	m.Deleted = true
	m.DeletedBy = by
	m.DeletedAt = &at
	return nil
}

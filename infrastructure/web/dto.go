package web

import (
	"encoding/json"
	"fmt"
	"time"

	"smartsolve/domain"
	"smartsolve/errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type SendMessageRequest struct {
	Receiver string `json:"receiver" validate:"required"`
	Content  string `json:"content" validate:"required"`
}

type BroadcastRequest struct {
	Targets []string        `json:"targets" validate:"required,min=1,dive,required"`
	Type    string          `json:"type" validate:"required,oneof=new_question new_answer answer_accepted vote system"`
	Payload json.RawMessage `json:"payload"`
}

// Frame is an inbound live-connection message.
type Frame struct {
	Type      string `json:"type" validate:"required,oneof=join leave send read"`
	Room      string `json:"room,omitempty" validate:"required_if=Type join,required_if=Type leave"`
	Receiver  string `json:"receiver,omitempty" validate:"required_if=Type send"`
	Content   string `json:"content,omitempty"`
	MessageID string `json:"message_id,omitempty" validate:"required_if=Type read"`
}

type MessageDTO struct {
	ID           uuid.UUID  `json:"id"`
	Sender       string     `json:"sender"`
	Receiver     string     `json:"receiver"`
	Conversation string     `json:"conversation"`
	Content      string     `json:"content"`
	Language     string     `json:"language,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	Read         bool       `json:"read"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
	Deleted      bool       `json:"deleted"`
	DeletedBy    string     `json:"deleted_by,omitempty"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

type NotificationDTO struct {
	ID          uuid.UUID  `json:"id"`
	Target      string     `json:"target"`
	Type        string     `json:"type"`
	Payload     any        `json:"payload,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Delivered   bool       `json:"delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

type SendMessageResponse struct {
	Message  MessageDTO `json:"message"`
	Delivery string     `json:"delivery"`
}

type ErrorDTO struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

// EventDTO is the outbound live-connection frame.
type EventDTO struct {
	Type    string    `json:"type"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

func ToMessageDTO(m domain.Message) MessageDTO {
	return MessageDTO{
		ID:           m.ID,
		Sender:       m.Sender.String(),
		Receiver:     m.Receiver.String(),
		Conversation: m.Conversation.String(),
		Content:      m.Content,
		Language:     m.Language,
		CreatedAt:    m.CreatedAt,
		Read:         m.Read,
		ReadAt:       m.ReadAt,
		Deleted:      m.Deleted,
		DeletedBy:    m.DeletedBy.String(),
		DeletedAt:    m.DeletedAt,
	}
}

func ToMessageDTOs(messages []domain.Message) []MessageDTO {
	return lo.Map(messages, func(m domain.Message, _ int) MessageDTO { return ToMessageDTO(m) })
}

func ToNotificationDTO(n domain.Notification) NotificationDTO {
	return NotificationDTO{
		ID:          n.ID,
		Target:      n.Target.String(),
		Type:        string(n.Type),
		Payload:     opaquePayload(n.Payload),
		CreatedAt:   n.CreatedAt,
		Delivered:   n.Delivered,
		DeliveredAt: n.DeliveredAt,
	}
}

func ToNotificationDTOs(notifications []domain.Notification) []NotificationDTO {
	return lo.Map(notifications, func(n domain.Notification, _ int) NotificationDTO { return ToNotificationDTO(n) })
}

func ToEventDTO(e domain.Event) EventDTO {
	var payload any
	switch p := e.Payload.(type) {
	case domain.Message:
		payload = ToMessageDTO(p)
	case domain.Notification:
		payload = ToNotificationDTO(p)
	case domain.ErrorPayload:
		payload = ErrorDTO{Code: p.Code, Reason: p.Reason}
	default:
		payload = p
	}
	return EventDTO{Type: string(e.Type), Payload: payload, At: e.At}
}

// opaquePayload keeps JSON payloads inline and falls back to a string otherwise.
func opaquePayload(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	return string(b)
}

// checkStruct turns validator failures into the invalid content error.
func checkStruct(v *validator.Validate, s any) error {
	if err := v.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidContent, err)
	}
	return nil
}

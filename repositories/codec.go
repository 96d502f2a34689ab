package repositories

import (
	"fmt"
	"time"

	"smartsolve/domain"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Records are stored in protobuf wire format so that fields can be added
// without rewriting existing entries. Unknown fields are skipped on read.

const (
	msgID protowire.Number = iota + 1
	msgSender
	msgReceiver
	msgConversation
	msgContent
	msgLanguage
	msgCreatedAt
	msgRead
	msgReadAt
	msgDeleted
	msgDeletedBy
	msgDeletedAt
)

const (
	notifID protowire.Number = iota + 1
	notifTarget
	notifType
	notifPayload
	notifCreatedAt
	notifDelivered
	notifDeliveredAt
)

const (
	userFieldID protowire.Number = iota + 1
	userFieldUsername
	userFieldRole
	userFieldBanned
	userFieldCreatedAt
)

func encodeMessage(m domain.Message) []byte {
	var b []byte
	b = appendString(b, msgID, m.ID.String())
	b = appendString(b, msgSender, string(m.Sender))
	b = appendString(b, msgReceiver, string(m.Receiver))
	b = appendString(b, msgConversation, string(m.Conversation))
	b = appendString(b, msgContent, m.Content)
	b = appendString(b, msgLanguage, m.Language)
	b = appendTime(b, msgCreatedAt, &m.CreatedAt)
	b = appendBool(b, msgRead, m.Read)
	b = appendTime(b, msgReadAt, m.ReadAt)
	b = appendBool(b, msgDeleted, m.Deleted)
	b = appendString(b, msgDeletedBy, string(m.DeletedBy))
	b = appendTime(b, msgDeletedAt, m.DeletedAt)
	return b
}

func decodeMessage(b []byte) (domain.Message, error) {
	var m domain.Message
	var rawID string
	err := decodeFields(b, func(num protowire.Number, s []byte, v uint64) {
		switch num {
		case msgID:
			rawID = string(s)
		case msgSender:
			m.Sender = domain.UserID(s)
		case msgReceiver:
			m.Receiver = domain.UserID(s)
		case msgConversation:
			m.Conversation = domain.ConversationKey(s)
		case msgContent:
			m.Content = string(s)
		case msgLanguage:
			m.Language = string(s)
		case msgCreatedAt:
			m.CreatedAt = fromNanos(v)
		case msgRead:
			m.Read = protowire.DecodeBool(v)
		case msgReadAt:
			m.ReadAt = timePtr(fromNanos(v))
		case msgDeleted:
			m.Deleted = protowire.DecodeBool(v)
		case msgDeletedBy:
			m.DeletedBy = domain.UserID(s)
		case msgDeletedAt:
			m.DeletedAt = timePtr(fromNanos(v))
		}
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("decode message: %w", err)
	}
	if m.ID, err = uuid.Parse(rawID); err != nil {
		return domain.Message{}, fmt.Errorf("decode message id: %w", err)
	}
	return m, nil
}

func encodeNotification(n domain.Notification) []byte {
	var b []byte
	b = appendString(b, notifID, n.ID.String())
	b = appendString(b, notifTarget, string(n.Target))
	b = appendString(b, notifType, string(n.Type))
	if len(n.Payload) > 0 {
		b = protowire.AppendTag(b, notifPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, n.Payload)
	}
	b = appendTime(b, notifCreatedAt, &n.CreatedAt)
	b = appendBool(b, notifDelivered, n.Delivered)
	b = appendTime(b, notifDeliveredAt, n.DeliveredAt)
	return b
}

func decodeNotification(b []byte) (domain.Notification, error) {
	var n domain.Notification
	var rawID string
	err := decodeFields(b, func(num protowire.Number, s []byte, v uint64) {
		switch num {
		case notifID:
			rawID = string(s)
		case notifTarget:
			n.Target = domain.UserID(s)
		case notifType:
			n.Type = domain.EventType(s)
		case notifPayload:
			n.Payload = append([]byte(nil), s...)
		case notifCreatedAt:
			n.CreatedAt = fromNanos(v)
		case notifDelivered:
			n.Delivered = protowire.DecodeBool(v)
		case notifDeliveredAt:
			n.DeliveredAt = timePtr(fromNanos(v))
		}
	})
	if err != nil {
		return domain.Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	if n.ID, err = uuid.Parse(rawID); err != nil {
		return domain.Notification{}, fmt.Errorf("decode notification id: %w", err)
	}
	return n, nil
}

func encodeUser(u User) []byte {
	var b []byte
	b = appendString(b, userFieldID, string(u.ID))
	b = appendString(b, userFieldUsername, u.Username)
	b = appendString(b, userFieldRole, u.Role)
	b = appendBool(b, userFieldBanned, u.Banned)
	b = appendTime(b, userFieldCreatedAt, &u.CreatedAt)
	return b
}

func decodeUser(b []byte) (User, error) {
	var u User
	err := decodeFields(b, func(num protowire.Number, s []byte, v uint64) {
		switch num {
		case userFieldID:
			u.ID = domain.UserID(s)
		case userFieldUsername:
			u.Username = string(s)
		case userFieldRole:
			u.Role = string(s)
		case userFieldBanned:
			u.Banned = protowire.DecodeBool(v)
		case userFieldCreatedAt:
			u.CreatedAt = fromNanos(v)
		}
	})
	if err != nil {
		return User{}, fmt.Errorf("decode user: %w", err)
	}
	return u, nil
}

// decodeFields walks every field of a record. Length-delimited values are passed
// as s, varints as v. Other wire types are skipped.
func decodeFields(b []byte, set func(num protowire.Number, s []byte, v uint64)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch typ {
		case protowire.BytesType:
			s, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			set(num, s, 0)
			n = m
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			set(num, nil, v)
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
		}
		b = b[n:]
	}
	return nil
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func appendTime(b []byte, num protowire.Number, t *time.Time) []byte {
	if t == nil || t.IsZero() {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(t.UnixNano()))
}

func fromNanos(v uint64) time.Time {
	return time.Unix(0, int64(v)).UTC()
}

func timePtr(t time.Time) *time.Time {
	return &t
}

//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"smartsolve/domain"
	"smartsolve/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	messagePrefix      = "msg:"
	messageIndexPrefix = "msgid:"
	unreadPrefix       = "unread:"
	// maxTimestamp sorts after every 19-digit zero padded timestamp.
	maxTimestamp = "9999999999999999999"
)

// IMessageRepository is the conversation store.
type IMessageRepository interface {
	Append(ctx context.Context, draft domain.Draft) (domain.Message, error)
	RangeFor(ctx context.Context, a, b domain.UserID) ([]domain.Message, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Message, error)
	MarkRead(ctx context.Context, id uuid.UUID) (domain.Message, error)
	SoftDelete(ctx context.Context, id uuid.UUID, requester domain.UserID) (domain.Message, error)
	UnreadCount(ctx context.Context, userID domain.UserID) (int, error)
}

// MessageRepository persists direct messages in BadgerDB.
//
// Layout:
//
//	msg:{conversation}:{timestamp_padded}:{uuid} -> message record
//	msgid:{uuid}                                 -> primary key
//	unread:{receiver}:{uuid}                     -> empty, present while unread and not deleted
//
// Writes are serialized per conversation key only. Reads run in badger
// snapshot transactions and never observe a partial write.
type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
	locks         *keyedMutex
	lastAt        sync.Map // domain.ConversationKey -> int64 nanos of the newest message
	now           func() time.Time
}

// NewMessageRepository treats a nil or non-positive limit as unlimited.
func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) *MessageRepository {
	if limitMessages != nil && *limitMessages <= 0 {
		limitMessages = nil
	}
	return &MessageRepository{
		db:            db,
		log:           log,
		limitMessages: limitMessages,
		locks:         newKeyedMutex(),
		now:           time.Now,
	}
}

func messageKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", messagePrefix, m.Conversation, m.CreatedAt.UnixNano(), m.ID))
}

func conversationPrefix(key domain.ConversationKey) []byte {
	return []byte(messagePrefix + string(key) + ":")
}

func messageIndexKey(id uuid.UUID) []byte {
	return []byte(messageIndexPrefix + id.String())
}

func unreadKey(receiver domain.UserID, id uuid.UUID) []byte {
	return []byte(unreadPrefix + string(receiver) + ":" + id.String())
}

// conversationOf extracts the conversation key from a primary key.
func conversationOf(primary []byte) domain.ConversationKey {
	rest := strings.TrimPrefix(string(primary), messagePrefix)
	conversation, _, _ := strings.Cut(rest, ":")
	return domain.ConversationKey(conversation)
}

// Append validates the draft, derives the conversation key and persists the message
// before returning it. Creation timestamps strictly increase within a conversation.
func (r *MessageRepository) Append(ctx context.Context, draft domain.Draft) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	draft, err := draft.Validate(0)
	if err != nil {
		return domain.Message{}, err
	}
	conversation := domain.NewConversationKey(draft.Sender, draft.Receiver)

	unlock := r.locks.Lock(string(conversation))
	defer unlock()

	at, err := r.nextTimestamp(conversation)
	if err != nil {
		return domain.Message{}, fmt.Errorf("conversation %s: %w", conversation, err)
	}
	msg, err := domain.NewMessage(draft, uuid.New(), at)
	if err != nil {
		return domain.Message{}, err
	}
	if err = msg.CheckIntegrity(); err != nil {
		return domain.Message{}, err
	}

	primary := messageKey(msg)
	err = r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(primary, encodeMessage(msg)); err != nil {
			return err
		}
		if err := txn.Set(messageIndexKey(msg.ID), primary); err != nil {
			return err
		}
		return txn.Set(unreadKey(msg.Receiver, msg.ID), []byte{})
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("persist message: %w", err)
	}
	r.lastAt.Store(conversation, msg.CreatedAt.UnixNano())
	return msg, nil
}

// nextTimestamp must be called with the conversation lock held.
func (r *MessageRepository) nextTimestamp(conversation domain.ConversationKey) (time.Time, error) {
	var last int64
	if v, ok := r.lastAt.Load(conversation); ok {
		last = v.(int64)
	} else {
		stored, err := r.newestStored(conversation)
		if err != nil {
			return time.Time{}, err
		}
		last = stored
	}
	next := r.now().UTC().UnixNano()
	if next <= last {
		next = last + 1
	}
	return time.Unix(0, next).UTC(), nil
}

// newestStored returns the timestamp of the newest persisted message, or 0.
func (r *MessageRepository) newestStored(conversation domain.ConversationKey) (int64, error) {
	var newest int64
	prefix := conversationPrefix(conversation)
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		it.Seek(append(slices.Clone(prefix), maxTimestamp...))
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		rest := string(it.Item().Key()[len(prefix):])
		ts, _, _ := strings.Cut(rest, ":")
		parsed, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return fmt.Errorf("corrupted message key %q: %w", it.Item().Key(), err)
		}
		newest = parsed
		return nil
	})
	return newest, err
}

// RangeFor returns the conversation of a and b in ascending creation order,
// both directions included. When a message limit is configured, only the most
// recent messages are kept.
func (r *MessageRepository) RangeFor(ctx context.Context, a, b domain.UserID) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := domain.ValidateUserID(a); err != nil {
		return nil, err
	}
	if err := domain.ValidateUserID(b); err != nil {
		return nil, err
	}
	prefix := conversationPrefix(domain.NewConversationKey(a, b))

	var messages []domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(append(slices.Clone(prefix), maxTimestamp...)); it.ValidForPrefix(prefix); it.Next() {
			if r.limitMessages != nil && len(messages) == *r.limitMessages {
				r.log.Debug(fmt.Sprintf("Maximum of %d message reached", *r.limitMessages))
				break
			}
			err := it.Item().Value(func(value []byte) error {
				msg, err := decodeMessage(value)
				if err != nil {
					return err
				}
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Collected newest first
	slices.Reverse(messages)
	return messages, nil
}

func (r *MessageRepository) Get(ctx context.Context, id uuid.UUID) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	var msg domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		primary, err := lookupPrimary(txn, id)
		if err != nil {
			return err
		}
		msg, err = readMessage(txn, primary)
		return err
	})
	return msg, err
}

// MarkRead sets the read flag. Repeated calls only refresh the read timestamp.
func (r *MessageRepository) MarkRead(ctx context.Context, id uuid.UUID) (domain.Message, error) {
	return r.mutate(ctx, id, func(msg *domain.Message) error {
		msg.MarkRead(r.now())
		return nil
	})
}

// SoftDelete flags the message as deleted. Only a participant may do so.
func (r *MessageRepository) SoftDelete(ctx context.Context, id uuid.UUID, requester domain.UserID) (domain.Message, error) {
	return r.mutate(ctx, id, func(msg *domain.Message) error {
		return msg.SoftDelete(requester, r.now())
	})
}

// mutate applies a domain command to a stored message under its conversation lock.
// A rejected command leaves the stored record untouched.
func (r *MessageRepository) mutate(ctx context.Context, id uuid.UUID, command func(*domain.Message) error) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	var primary []byte
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		primary, err = lookupPrimary(txn, id)
		return err
	})
	if err != nil {
		return domain.Message{}, err
	}

	unlock := r.locks.Lock(string(conversationOf(primary)))
	defer unlock()

	var msg domain.Message
	err = r.db.Update(func(txn *badger.Txn) error {
		var err error
		if msg, err = readMessage(txn, primary); err != nil {
			return err
		}
		if err = command(&msg); err != nil {
			return err
		}
		if err = msg.CheckIntegrity(); err != nil {
			return err
		}
		if err = txn.Set(primary, encodeMessage(msg)); err != nil {
			return err
		}
		if msg.Read || msg.Deleted {
			return txn.Delete(unreadKey(msg.Receiver, msg.ID))
		}
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// UnreadCount counts messages addressed to the user that are neither read nor deleted.
func (r *MessageRepository) UnreadCount(ctx context.Context, userID domain.UserID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	prefix := []byte(unreadPrefix + string(userID) + ":")
	count := 0
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func lookupPrimary(txn *badger.Txn, id uuid.UUID) ([]byte, error) {
	item, err := txn.Get(messageIndexKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("message %s: %w", id, errors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func readMessage(txn *badger.Txn, primary []byte) (domain.Message, error) {
	item, err := txn.Get(primary)
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, fmt.Errorf("message %s: %w", primary, errors.ErrNotFound)
	}
	if err != nil {
		return domain.Message{}, err
	}
	var msg domain.Message
	err = item.Value(func(value []byte) error {
		var decodeErr error
		msg, decodeErr = decodeMessage(value)
		return decodeErr
	})
	return msg, err
}

//go:generate go run go.uber.org/mock/mockgen -source=notification.go -destination=../mocks/mock_notification_repository.go -package=mocks
package repositories

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"smartsolve/domain"
	"smartsolve/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	notificationPrefix      = "notif:"
	notificationIndexPrefix = "notifid:"
	pendingPrefix           = "pending:"
)

type INotificationRepository interface {
	Save(ctx context.Context, n domain.Notification) error
	Get(ctx context.Context, id uuid.UUID) (domain.Notification, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (domain.Notification, error)
	Pending(ctx context.Context, target domain.UserID) ([]domain.Notification, error)
}

// NotificationRepository stores notifications per target user.
//
//	notif:{target}:{timestamp_padded}:{uuid} -> notification record
//	notifid:{uuid}                           -> primary key
//	pending:{target}:{timestamp_padded}:{uuid} -> primary key, removed once delivered
type NotificationRepository struct {
	db  *badger.DB
	log *slog.Logger
	now func() time.Time
}

func NewNotificationRepository(db *badger.DB, log *slog.Logger) *NotificationRepository {
	return &NotificationRepository{db: db, log: log, now: time.Now}
}

func notificationSuffix(n domain.Notification) string {
	return fmt.Sprintf("%s:%019d:%s", n.Target, n.CreatedAt.UnixNano(), n.ID)
}

func notificationKey(n domain.Notification) []byte {
	return []byte(notificationPrefix + notificationSuffix(n))
}

func pendingKey(n domain.Notification) []byte {
	return []byte(pendingPrefix + notificationSuffix(n))
}

func notificationIndexKey(id uuid.UUID) []byte {
	return []byte(notificationIndexPrefix + id.String())
}

func (r *NotificationRepository) Save(ctx context.Context, n domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	primary := notificationKey(n)
	err := r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(primary, encodeNotification(n)); err != nil {
			return err
		}
		if err := txn.Set(notificationIndexKey(n.ID), primary); err != nil {
			return err
		}
		if n.Delivered {
			return nil
		}
		return txn.Set(pendingKey(n), primary)
	})
	if err != nil {
		return fmt.Errorf("persist notification %s: %w", n.ID, err)
	}
	return nil
}

func (r *NotificationRepository) Get(ctx context.Context, id uuid.UUID) (domain.Notification, error) {
	if err := ctx.Err(); err != nil {
		return domain.Notification{}, err
	}
	var n domain.Notification
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		n, _, err = readNotification(txn, id)
		return err
	})
	return n, err
}

// MarkDelivered is idempotent, the first delivery time is kept.
func (r *NotificationRepository) MarkDelivered(ctx context.Context, id uuid.UUID) (domain.Notification, error) {
	if err := ctx.Err(); err != nil {
		return domain.Notification{}, err
	}
	var n domain.Notification
	err := r.db.Update(func(txn *badger.Txn) error {
		var (
			primary []byte
			err     error
		)
		n, primary, err = readNotification(txn, id)
		if err != nil {
			return err
		}
		if n.Delivered {
			return nil
		}
		n.MarkDelivered(r.now())
		if err = txn.Set(primary, encodeNotification(n)); err != nil {
			return err
		}
		return txn.Delete(pendingKey(n))
	})
	if err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

// Pending lists the undelivered notifications of a user, oldest first.
func (r *NotificationRepository) Pending(ctx context.Context, target domain.UserID) ([]domain.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(pendingPrefix + string(target) + ":")
	var pending []domain.Notification
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			primary, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			item, err := txn.Get(primary)
			if err != nil {
				r.log.Warn("Dangling pending notification", "key", string(it.Item().Key()), "error", err)
				continue
			}
			err = item.Value(func(value []byte) error {
				n, err := decodeNotification(value)
				if err != nil {
					return err
				}
				pending = append(pending, n)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return pending, err
}

func readNotification(txn *badger.Txn, id uuid.UUID) (domain.Notification, []byte, error) {
	index, err := txn.Get(notificationIndexKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Notification{}, nil, fmt.Errorf("notification %s: %w", id, errors.ErrNotFound)
	}
	if err != nil {
		return domain.Notification{}, nil, err
	}
	primary, err := index.ValueCopy(nil)
	if err != nil {
		return domain.Notification{}, nil, err
	}
	item, err := txn.Get(primary)
	if err != nil {
		return domain.Notification{}, nil, err
	}
	var n domain.Notification
	err = item.Value(func(value []byte) error {
		var decodeErr error
		n, decodeErr = decodeNotification(value)
		return decodeErr
	})
	return n, primary, err
}

//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"smartsolve/domain"
	"smartsolve/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

const userPrefix = "user:"

type IUserRepository interface {
	Save(ctx context.Context, user User) error
	Get(ctx context.Context, id domain.UserID) (User, error)
	SetBanned(ctx context.Context, id domain.UserID, banned bool) (User, error)
	List(ctx context.Context) ([]User, error)
	IsUserActive(ctx context.Context, id domain.UserID) (bool, error)
}

// User is the hub's view of an account: enough to answer the not-banned check.
type User struct {
	ID        domain.UserID
	Username  string
	Role      string
	Banned    bool
	CreatedAt time.Time
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

func userKey(id domain.UserID) []byte {
	return []byte(userPrefix + string(id))
}

// Save creates or replaces a user record.
func (u *UserRepository) Save(ctx context.Context, user User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := domain.ValidateUserID(user.ID); err != nil {
		return err
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	return u.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(user.ID), encodeUser(user))
	})
}

func (u *UserRepository) Get(ctx context.Context, id domain.UserID) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = readUser(txn, id)
		return err
	})
	return user, err
}

func (u *UserRepository) SetBanned(ctx context.Context, id domain.UserID, banned bool) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	var user User
	err := u.db.Update(func(txn *badger.Txn) error {
		var err error
		if user, err = readUser(txn, id); err != nil {
			return err
		}
		user.Banned = banned
		return txn.Set(userKey(id), encodeUser(user))
	})
	return user, err
}

func (u *UserRepository) List(ctx context.Context) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var users []User
	prefix := []byte(userPrefix)
	err := u.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				user, err := decodeUser(value)
				if err != nil {
					return err
				}
				users = append(users, user)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return users, err
}

// IsUserActive reports whether a known user is not banned.
// Unknown users yield ErrNotFound.
func (u *UserRepository) IsUserActive(ctx context.Context, id domain.UserID) (bool, error) {
	user, err := u.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return !user.Banned, nil
}

func readUser(txn *badger.Txn, id domain.UserID) (User, error) {
	item, err := txn.Get(userKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return User{}, fmt.Errorf("user %s: %w", id, errors.ErrNotFound)
	}
	if err != nil {
		return User{}, err
	}
	var user User
	err = item.Value(func(value []byte) error {
		var decodeErr error
		user, decodeErr = decodeUser(value)
		return decodeErr
	})
	return user, err
}

// ActiveIDs keeps the ids of users that are not banned.
func ActiveIDs(users []User) []domain.UserID {
	return lo.FilterMap(users, func(u User, _ int) (domain.UserID, bool) {
		return u.ID, !u.Banned
	})
}

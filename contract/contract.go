//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"smartsolve/domain"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is the write side of one live connection.
// Consume must honour ctx and must fail, not panic, once the connection is closed.
type EventSink interface {
	Consume(ctx context.Context, e domain.Event) error
}

// Connection is a registry snapshot entry. It never exposes registry internals.
type Connection struct {
	ID       domain.ConnectionID
	UserID   domain.UserID
	OpenedAt time.Time
	Sink     EventSink
}

type IRegistry interface {
	Register(userID domain.UserID, sink EventSink) (domain.ConnectionID, error)
	Unregister(connectionID domain.ConnectionID)
	ConnectionsFor(userID domain.UserID) []Connection
	ConnectionsInRoom(room domain.RoomKey) []Connection
	JoinRoom(connectionID domain.ConnectionID, room domain.RoomKey) error
	LeaveRoom(connectionID domain.ConnectionID, room domain.RoomKey) error
	Count() int
}

type IRouter interface {
	Deliver(ctx context.Context, message domain.Message) domain.DeliveryOutcome
	PushToUser(ctx context.Context, userID domain.UserID, e domain.Event) domain.DeliveryOutcome
	PushToRoom(ctx context.Context, room domain.RoomKey, e domain.Event) domain.DeliveryOutcome
}

type IGate interface {
	Authenticate(ctx context.Context, credential string) (domain.UserID, error)
	Identify(ctx context.Context, credential string) (domain.Identity, error)
}

// INotifier is the notification fan-out entry point for producers.
type INotifier interface {
	Notify(ctx context.Context, target domain.UserID, eventType domain.EventType, payload []byte) (domain.Notification, domain.DeliveryOutcome, error)
	NotifyMany(ctx context.Context, targets []domain.UserID, eventType domain.EventType, payload []byte) ([]domain.Notification, error)
}

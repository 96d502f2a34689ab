//go:generate go run go.uber.org/mock/mockgen -source=session_service.go -destination=../mocks/mock_session_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"smartsolve/contract"
	"smartsolve/domain"
	"smartsolve/errors"
	"smartsolve/observability"
)

// ISessionService drives the connection lifecycle:
// Unauthenticated -> Registered -> (RoomJoined)* -> Disconnected.
type ISessionService interface {
	Connect(ctx context.Context, credential string, sink contract.EventSink) (domain.Session, error)
	Join(session domain.Session, room domain.RoomKey) error
	Leave(session domain.Session, room domain.RoomKey) error
	Disconnect(session domain.Session)
}

type SessionService struct {
	gate       contract.IGate
	registry   contract.IRegistry
	monitoring *observability.MonitoringManager
	log        *slog.Logger
	now        func() time.Time
}

func NewSessionService(gate contract.IGate, registry contract.IRegistry,
	monitoring *observability.MonitoringManager, log *slog.Logger) *SessionService {
	return &SessionService{gate: gate, registry: registry, monitoring: monitoring, log: log, now: time.Now}
}

// Connect admits a connection. A refused connection is never registered.
func (s *SessionService) Connect(ctx context.Context, credential string, sink contract.EventSink) (domain.Session, error) {
	userID, err := s.gate.Authenticate(ctx, credential)
	if err != nil {
		s.monitoring.IncrConnectionsRefused()
		return domain.Session{}, err
	}
	connectionID, err := s.registry.Register(userID, sink)
	if err != nil {
		s.monitoring.IncrConnectionsRefused()
		s.log.Warn("Connection refused", "user_id", userID, "error", err)
		return domain.Session{}, err
	}
	s.log.Info("User connected", "user_id", userID, "connection_id", connectionID)
	return domain.Session{ConnectionID: connectionID, UserID: userID, OpenedAt: s.now().UTC()}, nil
}

// Join only admits a user into the room of a conversation they take part in.
func (s *SessionService) Join(session domain.Session, room domain.RoomKey) error {
	key, _, _, err := domain.ParseConversationKey(string(room))
	if err != nil {
		return err
	}
	if !key.Includes(session.UserID) {
		return fmt.Errorf("%w: %s is not part of %s", errors.ErrForbidden, session.UserID, key)
	}
	return s.registry.JoinRoom(session.ConnectionID, key.Room())
}

func (s *SessionService) Leave(session domain.Session, room domain.RoomKey) error {
	return s.registry.LeaveRoom(session.ConnectionID, room)
}

func (s *SessionService) Disconnect(session domain.Session) {
	s.registry.Unregister(session.ConnectionID)
	s.log.Info("User disconnected", "user_id", session.UserID, "connection_id", session.ConnectionID)
}

package web

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"smartsolve/domain"
	"smartsolve/errors"
	"smartsolve/sink"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

const maxFrameSize = 64 * 1024

var errShuttingDown = stderrors.New("shutting down")

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(s.config.AllowedOrigins, origin)
		},
	}
}

// HandleLive upgrades first and authenticates afterwards so that a refusal
// reaches the client as a close code instead of a bare HTTP status.
func (s *Server) HandleLive() http.HandlerFunc {
	upgrader := s.upgrader()
	return func(w http.ResponseWriter, r *http.Request) {
		connectionSink := sink.NewConnectionSink(s.config.ConnectionBufferSize)
		if !s.track(connectionSink) {
			s.respond(w, nil, http.StatusServiceUnavailable, errShuttingDown)
			return
		}
		defer s.untrack(connectionSink)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Debug("Upgrade failed", "error", err)
			return
		}
		defer func() { _ = conn.Close() }()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		session, err := s.sessions.Connect(ctx, r.URL.Query().Get("token"), connectionSink)
		if err != nil {
			s.reject(conn, err)
			return
		}

		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			s.writeLoop(conn, connectionSink)
		}()

		s.readLoop(ctx, conn, session, connectionSink)

		s.sessions.Disconnect(session)
		connectionSink.Close()
		<-writerDone
	}
}

// CloseLive refuses new live connections, closes the open ones and waits until
// every live handler has released its session.
func (s *Server) CloseLive(ctx context.Context) error {
	s.liveMu.Lock()
	s.draining = true
	sinks := lo.Keys(s.liveSinks)
	s.liveMu.Unlock()

	s.log.Info("Closing live connections", "count", len(sinks))
	for _, connectionSink := range sinks {
		connectionSink.Close()
	}

	done := make(chan struct{})
	go func() {
		s.live.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// track must not add to the wait group once CloseLive started waiting.
func (s *Server) track(connectionSink *sink.ConnectionSink) bool {
	s.liveMu.Lock()
	defer s.liveMu.Unlock()
	if s.draining {
		return false
	}
	s.liveSinks[connectionSink] = struct{}{}
	s.live.Add(1)
	return true
}

func (s *Server) untrack(connectionSink *sink.ConnectionSink) {
	s.liveMu.Lock()
	delete(s.liveSinks, connectionSink)
	s.liveMu.Unlock()
	s.live.Done()
}

func (s *Server) isDraining() bool {
	s.liveMu.Lock()
	defer s.liveMu.Unlock()
	return s.draining
}

func (s *Server) reject(conn *websocket.Conn, err error) {
	code := errors.MapToCloseCode(err)
	s.log.Info("Live connection refused", "code", code, "error", err)
	msg := websocket.FormatCloseMessage(code, err.Error())
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.config.WriteTimeout))
}

// writeLoop is the only goroutine writing to the connection.
func (s *Server) writeLoop(conn *websocket.Conn, connectionSink *sink.ConnectionSink) {
	ticker := time.NewTicker(pingPeriod(s.config.PongTimeout))
	defer ticker.Stop()

	for {
		select {
		case <-connectionSink.Done():
			code := websocket.CloseNormalClosure
			if s.isDraining() {
				code = websocket.CloseGoingAway
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(code, ""),
				time.Now().Add(s.config.WriteTimeout))
			// unblocks the read loop when the close comes from our side
			_ = conn.Close()
			return
		case e := <-connectionSink.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := conn.WriteJSON(ToEventDTO(e)); err != nil {
				s.log.Debug("Write failed", "error", err)
				connectionSink.Close()
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.WriteTimeout)); err != nil {
				connectionSink.Close()
				_ = conn.Close()
				return
			}
		}
	}
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, session domain.Session, connectionSink *sink.ConnectionSink) {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(s.config.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.PongTimeout))
	})

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("Live connection lost", "connection_id", session.ConnectionID, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.config.PongTimeout))

		if err := s.handleFrame(ctx, session, frame); err != nil {
			s.pushError(ctx, connectionSink, err)
		}
	}
}

func (s *Server) handleFrame(ctx context.Context, session domain.Session, frame Frame) error {
	if err := checkStruct(s.validate, frame); err != nil {
		return err
	}
	switch frame.Type {
	case "join":
		return s.sessions.Join(session, domain.RoomKey(frame.Room))
	case "leave":
		return s.sessions.Leave(session, domain.RoomKey(frame.Room))
	case "send":
		// the sender gets message_sent through its own connections
		_, _, err := s.messaging.SendMessage(ctx, session.UserID, domain.UserID(frame.Receiver), frame.Content)
		return err
	case "read":
		id, err := uuid.Parse(frame.MessageID)
		if err != nil {
			return fmt.Errorf("%w: message_id is not a valid identifier", errors.ErrNotFound)
		}
		_, err = s.messaging.MarkMessageRead(ctx, id)
		return err
	default:
		return fmt.Errorf("%w: unknown frame %q", errors.ErrInvalidContent, frame.Type)
	}
}

func (s *Server) pushError(ctx context.Context, connectionSink *sink.ConnectionSink, err error) {
	status := errors.MapToHTTPStatus(err)
	reason := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("Frame failed", "error", err)
		reason = errInternal.Error()
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.WriteTimeout)
	defer cancel()
	e := domain.NewEvent(domain.EventError, domain.ErrorPayload{Code: status, Reason: reason}, time.Now())
	if err := connectionSink.Consume(ctx, e); err != nil {
		s.log.Debug("Error frame dropped", "error", err)
	}
}

func pingPeriod(pongTimeout time.Duration) time.Duration {
	return pongTimeout * 9 / 10
}

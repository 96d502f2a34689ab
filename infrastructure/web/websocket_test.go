package web_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"smartsolve/contract"
	"smartsolve/domain"
	"smartsolve/errors"
	"smartsolve/infrastructure/web"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func dial(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func TestLive_Refused_Credential_Gets_Close_Code(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{errors.ErrUnauthenticated, errors.CloseUnauthenticated},
		{errors.ErrForbidden, errors.CloseForbidden},
		{errors.ErrResourceExhausted, websocket.CloseTryAgainLater},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t, nil)
			f.sessions.EXPECT().Connect(gomock.Any(), "bad", gomock.Any()).Return(domain.Session{}, tc.err)
			f.sessions.EXPECT().Disconnect(gomock.Any()).Times(0)
			server := httptest.NewServer(f.server)
			defer server.Close()

			conn := dial(t, server, "bad")
			_, _, err := conn.ReadMessage()

			req.True(websocket.IsCloseError(err, tc.code), "got %v", err)
		})
	}
}

func TestLive_Pushed_Events_Reach_The_Client(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)
	session := domain.Session{ConnectionID: "c1", UserID: "bob"}
	sinks := make(chan contract.EventSink, 1)
	disconnected := make(chan struct{})

	f.sessions.EXPECT().Connect(gomock.Any(), "token", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, s contract.EventSink) (domain.Session, error) {
			sinks <- s
			return session, nil
		})
	f.sessions.EXPECT().Disconnect(session).Do(func(domain.Session) { close(disconnected) })
	server := httptest.NewServer(f.server)
	defer server.Close()

	conn := dial(t, server, "token")
	s := <-sinks

	// Given a message pushed by the router
	msg := domain.Message{ID: uuid.New(), Sender: "alice", Receiver: "bob", Conversation: "alice_bob", Content: "hello"}
	req.NoError(s.Consume(context.Background(), domain.NewEvent(domain.EventNewMessage, msg, time.Now())))

	// Then the client reads a typed frame
	var frame struct {
		Type    string         `json:"type"`
		Payload web.MessageDTO `json:"payload"`
		At      time.Time      `json:"at"`
	}
	req.NoError(conn.ReadJSON(&frame))
	req.Equal("new_message", frame.Type)
	req.Equal("hello", frame.Payload.Content)
	req.False(frame.At.IsZero())

	// When the client leaves, the session is released
	req.NoError(conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		req.Fail("session was not released")
	}
}

func TestLive_Frames(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)
	session := domain.Session{ConnectionID: "c1", UserID: "alice"}
	id := uuid.New()

	f.sessions.EXPECT().Connect(gomock.Any(), "token", gomock.Any()).Return(session, nil)
	f.sessions.EXPECT().Join(session, domain.RoomKey("alice_bob")).Return(nil)
	f.sessions.EXPECT().Join(session, domain.RoomKey("bob_carol")).Return(errors.ErrForbidden)
	f.messaging.EXPECT().SendMessage(gomock.Any(), domain.UserID("alice"), domain.UserID("bob"), "hi").
		Return(domain.Message{}, domain.NewDeliveryOutcome(0, 0), nil)
	f.messaging.EXPECT().MarkMessageRead(gomock.Any(), id).Return(domain.Message{ID: id}, nil)
	disconnected := make(chan struct{})
	f.sessions.EXPECT().Disconnect(session).Do(func(domain.Session) { close(disconnected) })
	server := httptest.NewServer(f.server)
	defer server.Close()

	conn := dial(t, server, "token")
	req.NoError(conn.WriteJSON(web.Frame{Type: "join", Room: "alice_bob"}))
	req.NoError(conn.WriteJSON(web.Frame{Type: "send", Receiver: "bob", Content: "hi"}))
	req.NoError(conn.WriteJSON(web.Frame{Type: "read", MessageID: id.String()}))

	// Only refused frames produce an answer
	req.NoError(conn.WriteJSON(web.Frame{Type: "join", Room: "bob_carol"}))
	var refused struct {
		Type    string       `json:"type"`
		Payload web.ErrorDTO `json:"payload"`
	}
	req.NoError(conn.ReadJSON(&refused))
	req.Equal("error", refused.Type)
	req.Equal(403, refused.Payload.Code)

	req.NoError(conn.WriteJSON(web.Frame{Type: "shout"}))
	req.NoError(conn.ReadJSON(&refused))
	req.Equal(400, refused.Payload.Code)

	_ = conn.Close()
	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		req.Fail("session was not released")
	}
}

func TestLive_CloseLive_Releases_Sessions_Before_Returning(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)
	session := domain.Session{ConnectionID: "c1", UserID: "bob"}
	connected := make(chan struct{})
	disconnected := make(chan struct{})

	f.sessions.EXPECT().Connect(gomock.Any(), "token", gomock.Any()).
		DoAndReturn(func(context.Context, string, contract.EventSink) (domain.Session, error) {
			close(connected)
			return session, nil
		})
	f.sessions.EXPECT().Disconnect(session).Do(func(domain.Session) { close(disconnected) })
	server := httptest.NewServer(f.server)
	defer server.Close()

	// Given bob is connected
	conn := dial(t, server, "token")
	<-connected

	// When the hub shuts its live side down
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req.NoError(f.server.CloseLive(ctx))

	// Then the session is already released
	select {
	case <-disconnected:
	default:
		req.Fail("CloseLive returned before the session was released")
	}

	// And bob is told the server is going away
	_, _, err := conn.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	// And no new live connection is accepted
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=token"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	req.Error(err)
	req.NotNil(resp)
	req.Equal(http.StatusServiceUnavailable, resp.StatusCode)
}

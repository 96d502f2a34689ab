package runtime

import (
	"context"
	"fmt"
	"testing"
	"time"

	"smartsolve/domain"
	"smartsolve/observability"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testPushTimeout = 100 * time.Millisecond

func newTestRouter(registry *Registry) (*Router, *observability.MonitoringManager) {
	monitoring := observability.NewMonitoringManager(testLog, time.Second)
	return NewRouter(registry, monitoring, testLog, testPushTimeout), monitoring
}

func newTestMessage(t *testing.T, sender, receiver domain.UserID, content string) domain.Message {
	msg, err := domain.NewMessage(domain.Draft{Sender: sender, Receiver: receiver, Content: content}, uuid.New(), time.Now())
	require.NoError(t, err)
	return msg
}

func TestRouter_Deliver_Hello_To_Bob_In_Room(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry(RegistryConfig{})
	router, _ := newTestRouter(registry)

	// Given bob has one live connection joined to room alice_bob
	bobSink := newRecordingSink()
	bob, err := registry.Register("bob", bobSink)
	req.NoError(err)
	req.NoError(registry.JoinRoom(bob, "alice_bob"))

	// When alice's "hello" is delivered
	outcome := router.Deliver(context.Background(), newTestMessage(t, "alice", "bob", "hello"))

	// Then bob's connection received it within the window
	req.Equal(domain.Delivered, outcome.Status)
	select {
	case e := <-bobSink.got:
		req.Equal(domain.EventNewMessage, e.Type)
		req.Equal("hello", e.Payload.(domain.Message).Content)
	case <-time.After(testPushTimeout):
		req.Fail("bob did not receive the message in time")
	}
}

func TestRouter_Deliver_Offline_Is_Undelivered(t *testing.T) {
	req := require.New(t)
	router, monitoring := newTestRouter(newTestRegistry(RegistryConfig{}))

	outcome := router.Deliver(context.Background(), newTestMessage(t, "alice", "bob", "are you there?"))

	req.Equal(domain.Undelivered, outcome.Status)
	req.Zero(outcome.Attempted)
	req.Equal(uint64(1), monitoring.GetLatest().Undelivered)
}

func TestRouter_Deliver_Isolates_Failing_Connection(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry(RegistryConfig{})
	router, _ := newTestRouter(registry)

	// Given bob's phone is broken and his laptop is fine
	laptop := newRecordingSink()
	_, err := registry.Register("bob", failingSink{err: fmt.Errorf("broken pipe")})
	req.NoError(err)
	_, err = registry.Register("bob", laptop)
	req.NoError(err)

	outcome := router.Deliver(context.Background(), newTestMessage(t, "alice", "bob", "hello"))

	req.Equal(domain.PartiallyDelivered, outcome.Status)
	req.Equal(2, outcome.Attempted)
	req.Equal(1, outcome.Succeeded)
	req.Len(laptop.Events(), 1)
}

func TestRouter_Deliver_Abandons_Slow_Connections_In_Bounded_Time(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry(RegistryConfig{})
	router, monitoring := newTestRouter(registry)

	// Given one healthy, one stuck and one wedged connection
	healthy := newRecordingSink()
	_, err := registry.Register("bob", healthy)
	req.NoError(err)
	_, err = registry.Register("bob", stuckSink{})
	req.NoError(err)
	_, err = registry.Register("bob", ignoringSink{delay: 2 * time.Second})
	req.NoError(err)

	start := time.Now()
	outcome := router.Deliver(context.Background(), newTestMessage(t, "alice", "bob", "hello"))
	elapsed := time.Since(start)

	// Then the caller is released after the push window, not after the wedged write
	req.Less(elapsed, testPushTimeout+abandonGrace+200*time.Millisecond)
	req.Equal(domain.PartiallyDelivered, outcome.Status)
	req.Equal(2, outcome.Abandoned)
	req.Len(healthy.Events(), 1)
	req.Equal(uint64(2), monitoring.GetLatest().PushesAbandoned)
}

func TestRouter_Deliver_Echoes_To_Sender(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry(RegistryConfig{})
	router, _ := newTestRouter(registry)
	aliceSink := newRecordingSink()
	_, err := registry.Register("alice", aliceSink)
	req.NoError(err)

	// Bob is offline, the echo must not change the outcome
	outcome := router.Deliver(context.Background(), newTestMessage(t, "alice", "bob", "hello"))
	req.Equal(domain.Undelivered, outcome.Status)

	select {
	case e := <-aliceSink.got:
		req.Equal(domain.EventMessageSent, e.Type)
	case <-time.After(time.Second):
		req.Fail("sender echo not received")
	}
}

func TestRouter_Push_After_Unregister_Is_Safe(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry(RegistryConfig{})
	router, _ := newTestRouter(registry)
	id, err := registry.Register("bob", newRecordingSink())
	req.NoError(err)

	// When bob disconnects before the delivery
	registry.Unregister(id)

	outcome := router.Deliver(context.Background(), newTestMessage(t, "alice", "bob", "hello"))
	req.Equal(domain.Undelivered, outcome.Status)
}

type panickingSink struct{}

func (panickingSink) Consume(context.Context, domain.Event) error { panic("closed socket") }

func TestRouter_Panicking_Sink_Is_A_Failed_Push(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry(RegistryConfig{})
	router, _ := newTestRouter(registry)
	_, err := registry.Register("bob", panickingSink{})
	req.NoError(err)

	outcome := router.PushToUser(context.Background(), "bob", domain.NewEvent(domain.EventSystem, "x", time.Now()))
	req.Equal(domain.Undelivered, outcome.Status)
	req.Equal(1, outcome.Abandoned)
}

func TestRouter_PushToRoom(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry(RegistryConfig{})
	router, _ := newTestRouter(registry)

	aliceSink, bobSink, carolSink := newRecordingSink(), newRecordingSink(), newRecordingSink()
	alice, err := registry.Register("alice", aliceSink)
	req.NoError(err)
	bob, err := registry.Register("bob", bobSink)
	req.NoError(err)
	_, err = registry.Register("carol", carolSink)
	req.NoError(err)
	req.NoError(registry.JoinRoom(alice, "alice_bob"))
	req.NoError(registry.JoinRoom(bob, "alice_bob"))

	outcome := router.PushToRoom(context.Background(), "alice_bob", domain.NewEvent(domain.EventMessageRead, "m1", time.Now()))

	req.Equal(domain.Delivered, outcome.Status)
	req.Equal(2, outcome.Succeeded)
	req.Len(aliceSink.Events(), 1)
	req.Len(bobSink.Events(), 1)
	req.Empty(carolSink.Events())
}

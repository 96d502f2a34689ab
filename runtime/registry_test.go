package runtime

import (
	"fmt"
	"sync"
	"testing"

	"smartsolve/contract"
	"smartsolve/domain"
	"smartsolve/errors"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(config RegistryConfig) *Registry {
	if config.Shards == 0 {
		config.Shards = 8
	}
	return NewRegistry(config, testLog)
}

func connectionIDs(connections []contract.Connection) []domain.ConnectionID {
	return lo.Map(connections, func(c contract.Connection, _ int) domain.ConnectionID { return c.ID })
}

func TestRegistry_Register_Multiple_Devices(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry(RegistryConfig{})

	// Given bob is offline
	req.Empty(registry.ConnectionsFor("bob"))

	// When he connects from his phone and his laptop
	phone, err := registry.Register("bob", newRecordingSink())
	req.NoError(err)
	laptop, err := registry.Register("bob", newRecordingSink())
	req.NoError(err)

	// Then both connections are reachable
	req.NotEqual(phone, laptop)
	req.ElementsMatch([]domain.ConnectionID{phone, laptop}, connectionIDs(registry.ConnectionsFor("bob")))
	req.Equal(2, registry.Count())
	req.Equal(domain.Registered, registry.State(phone))
	req.Equal(RegistryStats{Connections: 2, Users: 1, Rooms: 0}, registry.Stats())
}

func TestRegistry_Unregister_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry(RegistryConfig{})
	id, err := registry.Register("bob", newRecordingSink())
	req.NoError(err)
	req.NoError(registry.JoinRoom(id, "alice_bob"))

	registry.Unregister(id)
	registry.Unregister(id)
	registry.Unregister("never-existed")

	req.Empty(registry.ConnectionsFor("bob"))
	req.Empty(registry.ConnectionsInRoom("alice_bob"))
	req.Zero(registry.Count())
	req.Equal(domain.Disconnected, registry.State(id))
	req.Equal(RegistryStats{}, registry.Stats())
}

func TestRegistry_Rooms(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry(RegistryConfig{})
	alice, err := registry.Register("alice", newRecordingSink())
	req.NoError(err)
	bob, err := registry.Register("bob", newRecordingSink())
	req.NoError(err)

	// When both join their conversation room, alice twice
	req.NoError(registry.JoinRoom(alice, "alice_bob"))
	req.NoError(registry.JoinRoom(alice, "alice_bob"))
	req.NoError(registry.JoinRoom(bob, "alice_bob"))

	// Then the room holds each connection once
	req.ElementsMatch([]domain.ConnectionID{alice, bob}, connectionIDs(registry.ConnectionsInRoom("alice_bob")))
	req.Equal(domain.RoomJoined, registry.State(alice))

	// When alice leaves, and leaves a room she never joined
	req.NoError(registry.LeaveRoom(alice, "alice_bob"))
	req.NoError(registry.LeaveRoom(alice, "alice_carol"))

	// Then only bob remains
	req.Equal([]domain.ConnectionID{bob}, connectionIDs(registry.ConnectionsInRoom("alice_bob")))
	req.Equal(domain.Registered, registry.State(alice))
}

func TestRegistry_Room_Errors(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry(RegistryConfig{})

	req.ErrorIs(registry.JoinRoom("ghost", "alice_bob"), errors.ErrNotFound)
	req.ErrorIs(registry.LeaveRoom("ghost", "alice_bob"), errors.ErrNotFound)

	id, err := registry.Register("alice", newRecordingSink())
	req.NoError(err)
	req.ErrorIs(registry.JoinRoom(id, ""), errors.ErrInvalidRoom)

	registry.Unregister(id)
	req.ErrorIs(registry.JoinRoom(id, "alice_bob"), errors.ErrNotFound)
}

func TestRegistry_Limits(t *testing.T) {
	t.Run("per user", func(t *testing.T) {
		req := require.New(t)
		registry := newTestRegistry(RegistryConfig{MaxPerUser: 2})
		_, err := registry.Register("bob", newRecordingSink())
		req.NoError(err)
		second, err := registry.Register("bob", newRecordingSink())
		req.NoError(err)

		_, err = registry.Register("bob", newRecordingSink())
		req.ErrorIs(err, errors.ErrResourceExhausted)
		req.Equal(2, registry.Count())

		// Other users are not affected, and a freed slot can be reused
		_, err = registry.Register("alice", newRecordingSink())
		req.NoError(err)
		registry.Unregister(second)
		_, err = registry.Register("bob", newRecordingSink())
		req.NoError(err)
	})

	t.Run("global", func(t *testing.T) {
		req := require.New(t)
		registry := newTestRegistry(RegistryConfig{MaxConnections: 3})
		for i := range 3 {
			_, err := registry.Register(domain.UserID(fmt.Sprintf("user%d", i)), newRecordingSink())
			req.NoError(err)
		}
		_, err := registry.Register("late", newRecordingSink())
		req.ErrorIs(err, errors.ErrResourceExhausted)
		req.Equal(3, registry.Count())
	})

	t.Run("invalid user", func(t *testing.T) {
		req := require.New(t)
		registry := newTestRegistry(RegistryConfig{})
		_, err := registry.Register("", newRecordingSink())
		req.ErrorIs(err, errors.ErrInvalidParticipant)
		req.Zero(registry.Count())
	})
}

func TestRegistry_Unknown_User_Is_Empty_Not_Error(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry(RegistryConfig{})
	req.Empty(registry.ConnectionsFor("nobody"))
	req.Empty(registry.ConnectionsInRoom("nobody_there"))
}

func TestRegistry_Concurrent_Churn(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry(RegistryConfig{Shards: 4})
	const users = 50

	var wg sync.WaitGroup
	for i := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user := domain.UserID(fmt.Sprintf("user%d", i))
			room := domain.NewConversationKey(user, "tutor").Room()
			for range 20 {
				id, err := registry.Register(user, newRecordingSink())
				req.NoError(err)
				req.NoError(registry.JoinRoom(id, room))
				req.NotEmpty(registry.ConnectionsFor(user))
				_ = registry.ConnectionsInRoom(room)
				registry.Unregister(id)
			}
		}()
	}
	wg.Wait()

	req.Zero(registry.Count())
	req.Equal(RegistryStats{}, registry.Stats())
	req.Empty(registry.Connections())
}

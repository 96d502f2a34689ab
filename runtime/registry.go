package runtime

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"smartsolve/contract"
	"smartsolve/domain"
	"smartsolve/errors"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type Set map[domain.ConnectionID]struct{}

// shard owns the user and room memberships hashing to it.
type shard struct {
	mu    sync.RWMutex
	users map[domain.UserID]Set
	rooms map[domain.RoomKey]Set
}

// entry is one live connection. Lock order: entry.mu, then a shard lock.
type entry struct {
	mu     sync.Mutex
	conn   contract.Connection
	rooms  map[domain.RoomKey]struct{}
	closed bool
}

// Registry maps users to their live connections.
// Memberships are partitioned in shards so that mutations only contend
// with users and rooms hashing to the same shard. Lookups return snapshots
// and never wait on a connection.
type Registry struct {
	shards         []*shard
	connections    sync.Map // domain.ConnectionID -> *entry
	total          atomic.Int64
	maxConnections int
	maxPerUser     int
	log            *slog.Logger
	now            func() time.Time
}

type RegistryConfig struct {
	Shards         int
	MaxConnections int // 0 means unlimited
	MaxPerUser     int // 0 means unlimited
}

// RegistryStats is a point in time view, used by the debug server.
type RegistryStats struct {
	Connections int `json:"connections"`
	Users       int `json:"users"`
	Rooms       int `json:"rooms"`
}

func NewRegistry(config RegistryConfig, log *slog.Logger) *Registry {
	count := max(config.Shards, 1)
	shards := make([]*shard, count)
	for i := range shards {
		shards[i] = &shard{
			users: make(map[domain.UserID]Set),
			rooms: make(map[domain.RoomKey]Set),
		}
	}
	return &Registry{
		shards:         shards,
		maxConnections: config.MaxConnections,
		maxPerUser:     config.MaxPerUser,
		log:            log,
		now:            time.Now,
	}
}

func (r *Registry) shardFor(key string) *shard {
	return r.shards[xxhash.Sum64String(key)%uint64(len(r.shards))]
}

// Register adds a live connection for the user.
// It only fails when a connection limit is reached.
func (r *Registry) Register(userID domain.UserID, sink contract.EventSink) (domain.ConnectionID, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return "", err
	}
	if n := r.total.Add(1); r.maxConnections > 0 && n > int64(r.maxConnections) {
		r.total.Add(-1)
		return "", fmt.Errorf("%w: %d live connections", errors.ErrResourceExhausted, r.maxConnections)
	}

	s := r.shardFor(string(userID))
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.maxPerUser > 0 && len(s.users[userID]) >= r.maxPerUser {
		r.total.Add(-1)
		return "", fmt.Errorf("%w: %s already holds %d connections", errors.ErrResourceExhausted, userID, r.maxPerUser)
	}

	id := domain.ConnectionID(uuid.NewString())
	r.connections.Store(id, &entry{
		conn: contract.Connection{
			ID:       id,
			UserID:   userID,
			OpenedAt: r.now().UTC(),
			Sink:     sink,
		},
		rooms: make(map[domain.RoomKey]struct{}),
	})
	if _, ok := s.users[userID]; !ok {
		s.users[userID] = make(Set)
	}
	s.users[userID][id] = struct{}{}

	r.log.Debug("Connection registered", "user_id", userID, "connection_id", id)
	return id, nil
}

// Unregister is idempotent. Once it returns, no lookup yields the connection.
func (r *Registry) Unregister(connectionID domain.ConnectionID) {
	v, ok := r.connections.LoadAndDelete(connectionID)
	if !ok {
		return
	}
	e := v.(*entry)

	e.mu.Lock()
	e.closed = true
	for room := range e.rooms {
		r.removeFromRoom(room, connectionID)
	}
	e.rooms = nil
	e.mu.Unlock()

	s := r.shardFor(string(e.conn.UserID))
	s.mu.Lock()
	if ids, ok := s.users[e.conn.UserID]; ok {
		delete(ids, connectionID)
		if len(ids) == 0 {
			delete(s.users, e.conn.UserID)
		}
	}
	s.mu.Unlock()

	r.total.Add(-1)
	r.log.Debug("Connection unregistered", "user_id", e.conn.UserID, "connection_id", connectionID)
}

// ConnectionsFor returns the user's live connections at call time, possibly none.
func (r *Registry) ConnectionsFor(userID domain.UserID) []contract.Connection {
	s := r.shardFor(string(userID))
	s.mu.RLock()
	ids := lo.Keys(s.users[userID])
	s.mu.RUnlock()
	return r.resolve(ids)
}

func (r *Registry) ConnectionsInRoom(room domain.RoomKey) []contract.Connection {
	s := r.shardFor(string(room))
	s.mu.RLock()
	ids := lo.Keys(s.rooms[room])
	s.mu.RUnlock()
	return r.resolve(ids)
}

// resolve drops ids unregistered since the membership was read.
func (r *Registry) resolve(ids []domain.ConnectionID) []contract.Connection {
	connections := make([]contract.Connection, 0, len(ids))
	for _, id := range ids {
		if v, ok := r.connections.Load(id); ok {
			connections = append(connections, v.(*entry).conn)
		}
	}
	return connections
}

// JoinRoom is idempotent. Unknown connections yield errors.ErrNotFound.
func (r *Registry) JoinRoom(connectionID domain.ConnectionID, room domain.RoomKey) error {
	if room == "" {
		return fmt.Errorf("%w: empty room", errors.ErrInvalidRoom)
	}
	e, err := r.lockEntry(connectionID)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	if _, ok := e.rooms[room]; ok {
		return nil
	}
	s := r.shardFor(string(room))
	s.mu.Lock()
	if _, ok := s.rooms[room]; !ok {
		s.rooms[room] = make(Set)
	}
	s.rooms[room][connectionID] = struct{}{}
	s.mu.Unlock()
	e.rooms[room] = struct{}{}
	return nil
}

// LeaveRoom is a no-op for a room the connection never joined.
func (r *Registry) LeaveRoom(connectionID domain.ConnectionID, room domain.RoomKey) error {
	e, err := r.lockEntry(connectionID)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	if _, ok := e.rooms[room]; !ok {
		return nil
	}
	r.removeFromRoom(room, connectionID)
	delete(e.rooms, room)
	return nil
}

func (r *Registry) lockEntry(connectionID domain.ConnectionID) (*entry, error) {
	v, ok := r.connections.Load(connectionID)
	if !ok {
		return nil, fmt.Errorf("connection %s: %w", connectionID, errors.ErrNotFound)
	}
	e := v.(*entry)
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, fmt.Errorf("connection %s: %w", connectionID, errors.ErrNotFound)
	}
	return e, nil
}

func (r *Registry) removeFromRoom(room domain.RoomKey, connectionID domain.ConnectionID) {
	s := r.shardFor(string(room))
	s.mu.Lock()
	defer s.mu.Unlock()
	if ids, ok := s.rooms[room]; ok {
		delete(ids, connectionID)
		if len(ids) == 0 {
			delete(s.rooms, room)
		}
	}
}

// State reports where a connection is in its lifecycle.
// Anything no longer registered is Disconnected.
func (r *Registry) State(connectionID domain.ConnectionID) domain.ConnectionState {
	e, err := r.lockEntry(connectionID)
	if err != nil {
		return domain.Disconnected
	}
	defer e.mu.Unlock()
	if len(e.rooms) > 0 {
		return domain.RoomJoined
	}
	return domain.Registered
}

func (r *Registry) Count() int {
	return int(r.total.Load())
}

// Connections lists every live connection.
func (r *Registry) Connections() []contract.Connection {
	var connections []contract.Connection
	r.connections.Range(func(_, v any) bool {
		connections = append(connections, v.(*entry).conn)
		return true
	})
	return connections
}

func (r *Registry) Stats() RegistryStats {
	stats := RegistryStats{Connections: r.Count()}
	for _, s := range r.shards {
		s.mu.RLock()
		stats.Users += len(s.users)
		stats.Rooms += len(s.rooms)
		s.mu.RUnlock()
	}
	return stats
}

package domain

import "time"

type ConnectionID string

func (c ConnectionID) String() string { return string(c) }

// ConnectionState follows Unauthenticated -> Registered -> (RoomJoined)* -> Disconnected.
// Disconnected is terminal; a new attempt starts again from Unauthenticated.
type ConnectionState int

const (
	Unauthenticated ConnectionState = iota
	Registered
	RoomJoined
	Disconnected
)

func (s ConnectionState) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Registered:
		return "registered"
	case RoomJoined:
		return "room_joined"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session is what a successful authentication hands back to the transport.
type Session struct {
	ConnectionID ConnectionID
	UserID       UserID
	OpenedAt     time.Time
}
